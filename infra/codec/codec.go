// Package codec is the wire format shared by the order gateway and the
// market data feeds. Messages are protobuf-compatible: every field is a
// varint, signed fields are zigzag encoded.
package codec

import (
	"math"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"tachyon/domain/exchange"
)

var (
	ErrMalformed  = errors.New("codec: malformed message")
	ErrFieldRange = errors.New("codec: field value out of range")
)

// field numbers, shared by all record messages
const (
	fSeq protowire.Number = iota + 1
	fType
	fClientID
	fTickerID
	fClientOrderID
	fMarketOrderID
	fSide
	fPrice
	fQty
	fLeavesQty
	fPriority
)

func appendUvarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSvarint(b []byte, num protowire.Number, v int64) []byte {
	return appendUvarint(b, num, protowire.EncodeZigZag(v))
}

// walk calls fn for every varint field of b and skips the rest.
func walk(b []byte, fn func(num protowire.Number, v uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return errors.Wrapf(ErrMalformed, "field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}

func u32(num protowire.Number, v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, errors.Wrapf(ErrFieldRange, "field %d: %d", num, v)
	}
	return uint32(v), nil
}

func side(num protowire.Number, v uint64) (exchange.Side, error) {
	s := protowire.DecodeZigZag(v)
	if s < math.MinInt8 || s > math.MaxInt8 {
		return 0, errors.Wrapf(ErrFieldRange, "field %d: %d", num, s)
	}
	return exchange.Side(s), nil
}

func u8(num protowire.Number, v uint64) (uint8, error) {
	if v > math.MaxUint8 {
		return 0, errors.Wrapf(ErrFieldRange, "field %d: %d", num, v)
	}
	return uint8(v), nil
}
