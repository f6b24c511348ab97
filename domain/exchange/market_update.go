package exchange

import (
	"fmt"

	"tachyon/infra/queue"
)

type MarketUpdateType uint8

const (
	UpdateInvalid MarketUpdateType = iota
	UpdateClear
	UpdateAdd
	UpdateModify
	UpdateCancel
	UpdateTrade
	UpdateSnapshotStart
	UpdateSnapshotEnd
)

func (t MarketUpdateType) String() string {
	switch t {
	case UpdateInvalid:
		return "INVALID"
	case UpdateClear:
		return "CLEAR"
	case UpdateAdd:
		return "ADD"
	case UpdateModify:
		return "MODIFY"
	case UpdateCancel:
		return "CANCEL"
	case UpdateTrade:
		return "TRADE"
	case UpdateSnapshotStart:
		return "SNAPSHOT_START"
	case UpdateSnapshotEnd:
		return "SNAPSHOT_END"
	default:
		return "UNKNOWN"
	}
}

// MarketUpdate is one public book event.
type MarketUpdate struct {
	Type     MarketUpdateType
	OrderID  OrderID
	TickerID TickerID
	Side     Side
	Price    Price
	Qty      Qty
	Priority Priority
}

func (u MarketUpdate) String() string {
	return fmt.Sprintf("MarketUpdate[type:%s ticker:%s oid:%s side:%s qty:%s price:%s priority:%s]",
		u.Type, u.TickerID, u.OrderID, u.Side, u.Qty, u.Price, u.Priority)
}

// PubMarketUpdate is a MarketUpdate stamped with the publisher's
// sequence number.
type PubMarketUpdate struct {
	SeqNum uint64
	Update MarketUpdate
}

func (u PubMarketUpdate) String() string {
	return fmt.Sprintf("PubMarketUpdate[seq:%d %s]", u.SeqNum, u.Update)
}

type (
	MarketUpdateQueue    = queue.SPSC[MarketUpdate]
	PubMarketUpdateQueue = queue.SPSC[PubMarketUpdate]
)
