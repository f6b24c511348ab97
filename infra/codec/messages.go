package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"tachyon/domain/exchange"
)

// ---------------- SequencedClientRequest ----------------

func AppendClientRequest(b []byte, m *exchange.SequencedClientRequest) []byte {
	r := &m.Request
	b = appendUvarint(b, fSeq, m.SeqNum)
	b = appendUvarint(b, fType, uint64(r.Type))
	b = appendUvarint(b, fClientID, uint64(r.ClientID))
	b = appendUvarint(b, fTickerID, uint64(r.TickerID))
	b = appendUvarint(b, fClientOrderID, uint64(r.ClientOrderID))
	b = appendSvarint(b, fSide, int64(r.Side))
	b = appendSvarint(b, fPrice, int64(r.Price))
	b = appendUvarint(b, fQty, uint64(r.Qty))
	return b
}

func DecodeClientRequest(b []byte) (exchange.SequencedClientRequest, error) {
	var m exchange.SequencedClientRequest
	r := &m.Request
	err := walk(b, func(num protowire.Number, v uint64) error {
		var err error
		switch num {
		case fSeq:
			m.SeqNum = v
		case fType:
			var t uint8
			t, err = u8(num, v)
			r.Type = exchange.ClientRequestType(t)
		case fClientID:
			var id uint32
			id, err = u32(num, v)
			r.ClientID = exchange.ClientID(id)
		case fTickerID:
			var id uint32
			id, err = u32(num, v)
			r.TickerID = exchange.TickerID(id)
		case fClientOrderID:
			r.ClientOrderID = exchange.OrderID(v)
		case fSide:
			r.Side, err = side(num, v)
		case fPrice:
			r.Price = exchange.Price(protowire.DecodeZigZag(v))
		case fQty:
			var q uint32
			q, err = u32(num, v)
			r.Qty = exchange.Qty(q)
		}
		return err
	})
	return m, err
}

// ---------------- SequencedClientResponse ----------------

func AppendClientResponse(b []byte, m *exchange.SequencedClientResponse) []byte {
	r := &m.Response
	b = appendUvarint(b, fSeq, m.SeqNum)
	b = appendUvarint(b, fType, uint64(r.Type))
	b = appendUvarint(b, fClientID, uint64(r.ClientID))
	b = appendUvarint(b, fTickerID, uint64(r.TickerID))
	b = appendUvarint(b, fClientOrderID, uint64(r.ClientOrderID))
	b = appendUvarint(b, fMarketOrderID, uint64(r.MarketOrderID))
	b = appendSvarint(b, fSide, int64(r.Side))
	b = appendSvarint(b, fPrice, int64(r.Price))
	b = appendUvarint(b, fQty, uint64(r.ExecQty))
	b = appendUvarint(b, fLeavesQty, uint64(r.LeavesQty))
	return b
}

func DecodeClientResponse(b []byte) (exchange.SequencedClientResponse, error) {
	var m exchange.SequencedClientResponse
	r := &m.Response
	err := walk(b, func(num protowire.Number, v uint64) error {
		var err error
		switch num {
		case fSeq:
			m.SeqNum = v
		case fType:
			var t uint8
			t, err = u8(num, v)
			r.Type = exchange.ClientResponseType(t)
		case fClientID:
			var id uint32
			id, err = u32(num, v)
			r.ClientID = exchange.ClientID(id)
		case fTickerID:
			var id uint32
			id, err = u32(num, v)
			r.TickerID = exchange.TickerID(id)
		case fClientOrderID:
			r.ClientOrderID = exchange.OrderID(v)
		case fMarketOrderID:
			r.MarketOrderID = exchange.OrderID(v)
		case fSide:
			r.Side, err = side(num, v)
		case fPrice:
			r.Price = exchange.Price(protowire.DecodeZigZag(v))
		case fQty:
			var q uint32
			q, err = u32(num, v)
			r.ExecQty = exchange.Qty(q)
		case fLeavesQty:
			var q uint32
			q, err = u32(num, v)
			r.LeavesQty = exchange.Qty(q)
		}
		return err
	})
	return m, err
}

// ---------------- PubMarketUpdate ----------------

func AppendPubMarketUpdate(b []byte, m *exchange.PubMarketUpdate) []byte {
	u := &m.Update
	b = appendUvarint(b, fSeq, m.SeqNum)
	b = appendUvarint(b, fType, uint64(u.Type))
	b = appendUvarint(b, fTickerID, uint64(u.TickerID))
	b = appendUvarint(b, fMarketOrderID, uint64(u.OrderID))
	b = appendSvarint(b, fSide, int64(u.Side))
	b = appendSvarint(b, fPrice, int64(u.Price))
	b = appendUvarint(b, fQty, uint64(u.Qty))
	b = appendUvarint(b, fPriority, uint64(u.Priority))
	return b
}

// EncodePubMarketUpdate returns a freshly allocated encoding of m.
func EncodePubMarketUpdate(m *exchange.PubMarketUpdate) []byte {
	return AppendPubMarketUpdate(make([]byte, 0, 64), m)
}

func DecodePubMarketUpdate(b []byte) (exchange.PubMarketUpdate, error) {
	var m exchange.PubMarketUpdate
	u := &m.Update
	err := walk(b, func(num protowire.Number, v uint64) error {
		var err error
		switch num {
		case fSeq:
			m.SeqNum = v
		case fType:
			var t uint8
			t, err = u8(num, v)
			u.Type = exchange.MarketUpdateType(t)
		case fTickerID:
			var id uint32
			id, err = u32(num, v)
			u.TickerID = exchange.TickerID(id)
		case fMarketOrderID:
			u.OrderID = exchange.OrderID(v)
		case fSide:
			u.Side, err = side(num, v)
		case fPrice:
			u.Price = exchange.Price(protowire.DecodeZigZag(v))
		case fQty:
			var q uint32
			q, err = u32(num, v)
			u.Qty = exchange.Qty(q)
		case fPriority:
			u.Priority = exchange.Priority(v)
		}
		return err
	})
	return m, err
}
