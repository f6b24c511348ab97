package exchange

import (
	"fmt"

	"tachyon/infra/queue"
)

type ClientResponseType uint8

const (
	ResponseInvalid ClientResponseType = iota
	ResponseAccepted
	ResponseCanceled
	ResponseFilled
	ResponseCancelRejected
	ResponseRejected
)

func (t ClientResponseType) String() string {
	switch t {
	case ResponseInvalid:
		return "INVALID"
	case ResponseAccepted:
		return "ACCEPTED"
	case ResponseCanceled:
		return "CANCELED"
	case ResponseFilled:
		return "FILLED"
	case ResponseCancelRejected:
		return "CANCEL_REJECTED"
	case ResponseRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// ClientResponse is emitted by the engine for the order's owner.
type ClientResponse struct {
	Type          ClientResponseType
	ClientID      ClientID
	TickerID      TickerID
	ClientOrderID OrderID
	MarketOrderID OrderID
	Side          Side
	Price         Price
	ExecQty       Qty
	LeavesQty     Qty
}

func (r ClientResponse) String() string {
	return fmt.Sprintf("ClientResponse[type:%s client:%s ticker:%s coid:%s moid:%s side:%s exec_qty:%s leaves_qty:%s price:%s]",
		r.Type, r.ClientID, r.TickerID, r.ClientOrderID, r.MarketOrderID, r.Side, r.ExecQty, r.LeavesQty, r.Price)
}

// SequencedClientResponse carries the per-client outgoing sequence.
type SequencedClientResponse struct {
	SeqNum   uint64
	Response ClientResponse
}

func (r SequencedClientResponse) String() string {
	return fmt.Sprintf("SequencedClientResponse[seq:%d %s]", r.SeqNum, r.Response)
}

// Rejected builds the response sent for requests that never reach a book.
func Rejected(req ClientRequest) ClientResponse {
	return ClientResponse{
		Type:          ResponseRejected,
		ClientID:      req.ClientID,
		TickerID:      req.TickerID,
		ClientOrderID: req.ClientOrderID,
		MarketOrderID: OrderIDInvalid,
		Side:          req.Side,
		Price:         req.Price,
		ExecQty:       QtyInvalid,
		LeavesQty:     QtyInvalid,
	}
}

type ClientResponseQueue = queue.SPSC[ClientResponse]
