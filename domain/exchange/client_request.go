package exchange

import (
	"fmt"

	"tachyon/infra/queue"
)

type ClientRequestType uint8

const (
	RequestInvalid ClientRequestType = iota
	RequestNew
	RequestCancel
)

func (t ClientRequestType) String() string {
	switch t {
	case RequestInvalid:
		return "INVALID"
	case RequestNew:
		return "NEW"
	case RequestCancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

// ClientRequest is what the gateway hands to the matching engine.
type ClientRequest struct {
	Type          ClientRequestType
	ClientID      ClientID
	TickerID      TickerID
	ClientOrderID OrderID
	Side          Side
	Price         Price
	Qty           Qty
}

func (r ClientRequest) String() string {
	return fmt.Sprintf("ClientRequest[type:%s client:%s ticker:%s coid:%s side:%s qty:%s price:%s]",
		r.Type, r.ClientID, r.TickerID, r.ClientOrderID, r.Side, r.Qty, r.Price)
}

// SequencedClientRequest is the gateway framing: clients number their
// requests from 1.
type SequencedClientRequest struct {
	SeqNum  uint64
	Request ClientRequest
}

func (r SequencedClientRequest) String() string {
	return fmt.Sprintf("SequencedClientRequest[seq:%d %s]", r.SeqNum, r.Request)
}

type ClientRequestQueue = queue.SPSC[ClientRequest]
