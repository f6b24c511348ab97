package exchange

import (
	"math"
	"strconv"
)

// Default sizing. Config may lower or raise them at startup; nothing
// grows afterwards.
const (
	MaxTickers         = 8
	MaxClientUpdates   = 256 * 1024
	MaxMarketUpdates   = 256 * 1024
	MaxNumClients      = 256
	MaxOrderIDs        = 1024 * 1024
	MaxPriceLevels     = 256
	MaxPendingRequests = 1024
)

type (
	TickerID uint32
	OrderID  uint64
	ClientID uint32
	Price    int64
	Qty      uint32
	Priority uint64
)

const (
	TickerIDInvalid TickerID = math.MaxUint32
	OrderIDInvalid  OrderID  = math.MaxUint64
	ClientIDInvalid ClientID = math.MaxUint32
	PriceInvalid    Price    = math.MaxInt64
	QtyInvalid      Qty      = math.MaxUint32
	PriorityInvalid Priority = math.MaxUint64
)

func (t TickerID) String() string {
	if t == TickerIDInvalid {
		return "INVALID"
	}
	return strconv.FormatUint(uint64(t), 10)
}

func (o OrderID) String() string {
	if o == OrderIDInvalid {
		return "INVALID"
	}
	return strconv.FormatUint(uint64(o), 10)
}

func (c ClientID) String() string {
	if c == ClientIDInvalid {
		return "INVALID"
	}
	return strconv.FormatUint(uint64(c), 10)
}

func (p Price) String() string {
	if p == PriceInvalid {
		return "INVALID"
	}
	return strconv.FormatInt(int64(p), 10)
}

func (q Qty) String() string {
	if q == QtyInvalid {
		return "INVALID"
	}
	return strconv.FormatUint(uint64(q), 10)
}

func (p Priority) String() string {
	if p == PriorityInvalid {
		return "INVALID"
	}
	return strconv.FormatUint(uint64(p), 10)
}

// Side is signed so that Buy/Sell can be used as a direction multiplier.
type Side int8

const (
	SideInvalid Side = 0
	Buy         Side = 1
	Sell        Side = -1
)

func (s Side) String() string {
	switch s {
	case SideInvalid:
		return "INVALID"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the contra side.
func (s Side) Opposite() Side {
	return -s
}
