package grpcserver

import (
	"github.com/cockroachdb/errors"

	"tachyon/domain/exchange"
	"tachyon/infra/codec"
)

// Codec carries the gateway messages over gRPC. Both ends force it:
// the server with grpc.ForceServerCodec, the client with grpc.ForceCodec.
type Codec struct{}

func (Codec) Name() string { return "tachyon" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *exchange.SequencedClientRequest:
		return codec.AppendClientRequest(nil, m), nil
	case *exchange.SequencedClientResponse:
		return codec.AppendClientResponse(nil, m), nil
	case *codec.SubmitAck:
		return codec.AppendSubmitAck(nil, m), nil
	case *codec.Subscribe:
		return codec.AppendSubscribe(nil, m), nil
	default:
		return nil, errors.Newf("grpcserver: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	var err error
	switch m := v.(type) {
	case *exchange.SequencedClientRequest:
		*m, err = codec.DecodeClientRequest(data)
	case *exchange.SequencedClientResponse:
		*m, err = codec.DecodeClientResponse(data)
	case *codec.SubmitAck:
		*m, err = codec.DecodeSubmitAck(data)
	case *codec.Subscribe:
		*m, err = codec.DecodeSubscribe(data)
	default:
		err = errors.Newf("grpcserver: cannot unmarshal into %T", v)
	}
	return err
}
