// Package metrics holds the prometheus collectors of every component.
// Label values are resolved once at construction so hot paths only
// touch plain counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tachyon/domain/exchange"
)

const namespace = "tachyon"

// NewRegistry returns a private registry with the process and Go
// runtime collectors attached.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// ---------------- Engine ----------------

type Engine struct {
	requests  [exchange.RequestCancel + 1]prometheus.Counter
	responses [exchange.ResponseRejected + 1]prometheus.Counter
	updates   [exchange.UpdateSnapshotEnd + 1]prometheus.Counter
	trades    prometheus.Counter
	tradedQty prometheus.Counter
}

func NewEngine(reg prometheus.Registerer) *Engine {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "engine", Name: "requests_total",
		Help: "Client requests processed by type.",
	}, []string{"type"})
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "engine", Name: "responses_total",
		Help: "Client responses emitted by type.",
	}, []string{"type"})
	updates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "engine", Name: "market_updates_total",
		Help: "Market updates emitted by type.",
	}, []string{"type"})

	m := &Engine{
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "trades_total",
			Help: "Executions.",
		}),
		tradedQty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "traded_qty_total",
			Help: "Executed quantity.",
		}),
	}
	for t := range m.requests {
		m.requests[t] = requests.WithLabelValues(exchange.ClientRequestType(t).String())
	}
	for t := range m.responses {
		m.responses[t] = responses.WithLabelValues(exchange.ClientResponseType(t).String())
	}
	for t := range m.updates {
		m.updates[t] = updates.WithLabelValues(exchange.MarketUpdateType(t).String())
	}

	reg.MustRegister(requests, responses, updates, m.trades, m.tradedQty)
	return m
}

func (m *Engine) Request(t exchange.ClientRequestType) {
	if int(t) < len(m.requests) {
		m.requests[t].Inc()
	}
}

func (m *Engine) Response(t exchange.ClientResponseType) {
	if int(t) < len(m.responses) {
		m.responses[t].Inc()
	}
}

func (m *Engine) Update(u *exchange.MarketUpdate) {
	if int(u.Type) < len(m.updates) {
		m.updates[u.Type].Inc()
	}
	if u.Type == exchange.UpdateTrade {
		m.trades.Inc()
		m.tradedQty.Add(float64(u.Qty))
	}
}

// ---------------- Market data ----------------

type MarketData struct {
	Published   prometheus.Counter
	SinkErrors  prometheus.Counter
	SinkSkipped prometheus.Counter
	StoreErrors prometheus.Counter
	LastSeq     prometheus.Gauge
	Snapshots   prometheus.Counter
	LiveOrders  prometheus.Gauge
	QueueDepth  *prometheus.GaugeVec
}

func NewMarketData(reg prometheus.Registerer) *MarketData {
	m := &MarketData{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "published_total",
			Help: "Incremental updates published.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "sink_errors_total",
			Help: "Failed sends to the incremental or snapshot sink.",
		}),
		SinkSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "sink_skipped_total",
			Help: "Incremental updates not sent while the sink was backing off.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "store_errors_total",
			Help: "Failed writes to the retransmit store.",
		}),
		LastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "last_seq",
			Help: "Last incremental sequence number published.",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "snapshots_total",
			Help: "Full snapshots published.",
		}),
		LiveOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "marketdata", Name: "snapshot_orders",
			Help: "Orders held by the snapshot synthesizer.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "depth",
			Help: "Sampled element count of an inter-goroutine queue.",
		}, []string{"queue"}),
	}
	reg.MustRegister(m.Published, m.SinkErrors, m.SinkSkipped, m.StoreErrors, m.LastSeq, m.Snapshots, m.LiveOrders, m.QueueDepth)
	return m
}

// ---------------- Gateway ----------------

type Gateway struct {
	Accepted     prometheus.Counter
	Rejected     prometheus.Counter
	Throttled    prometheus.Counter
	Delivered    prometheus.Counter
	Dropped      prometheus.Counter
	Disconnected prometheus.Counter
	Sessions     prometheus.Gauge
}

func NewGateway(reg prometheus.Registerer) *Gateway {
	submits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "submits_total",
		Help: "Submit calls by outcome.",
	}, []string{"result"})
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "gateway", Name: "responses_total",
		Help: "Engine responses by delivery outcome.",
	}, []string{"result"})

	m := &Gateway{
		Accepted:     submits.WithLabelValues("accepted"),
		Rejected:     submits.WithLabelValues("rejected"),
		Throttled:    submits.WithLabelValues("throttled"),
		Delivered:    responses.WithLabelValues("delivered"),
		Dropped:      responses.WithLabelValues("dropped"),
		Disconnected: responses.WithLabelValues("disconnected"),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "sessions",
			Help: "Open response streams.",
		}),
	}
	reg.MustRegister(submits, responses, m.Sessions)
	return m
}
