package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"tachyon/domain/exchange"
)

// SubmitAck answers one Submit call. Accepted means the request was
// handed to the matching engine; the outcome arrives on the response
// stream.
type SubmitAck struct {
	SeqNum   uint64
	Accepted bool
	Reason   string
}

// Subscribe opens the response stream of one client.
type Subscribe struct {
	ClientID exchange.ClientID
}

const (
	fAckSeq protowire.Number = iota + 1
	fAckAccepted
	fAckReason
)

func AppendSubmitAck(b []byte, m *SubmitAck) []byte {
	b = appendUvarint(b, fAckSeq, m.SeqNum)
	b = appendUvarint(b, fAckAccepted, protowire.EncodeBool(m.Accepted))
	if m.Reason != "" {
		b = protowire.AppendTag(b, fAckReason, protowire.BytesType)
		b = protowire.AppendString(b, m.Reason)
	}
	return b
}

func DecodeSubmitAck(b []byte) (SubmitAck, error) {
	var m SubmitAck
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		switch {
		case num == fAckSeq && typ == protowire.VarintType:
			m.SeqNum, n = protowire.ConsumeVarint(b)
		case num == fAckAccepted && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.Accepted = protowire.DecodeBool(v)
		case num == fAckReason && typ == protowire.BytesType:
			m.Reason, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return m, errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return m, nil
}

func AppendSubscribe(b []byte, m *Subscribe) []byte {
	return appendUvarint(b, fClientID, uint64(m.ClientID))
}

func DecodeSubscribe(b []byte) (Subscribe, error) {
	var m Subscribe
	err := walk(b, func(num protowire.Number, v uint64) error {
		if num != fClientID {
			return nil
		}
		id, err := u32(num, v)
		m.ClientID = exchange.ClientID(id)
		return err
	})
	return m, err
}
