// Package config loads the server configuration: defaults first, then
// whatever the JSON file overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"tachyon/domain/exchange"
	"tachyon/domain/orderbook"
	"tachyon/infra/kafka"
	"tachyon/infra/logging"
	"tachyon/infra/mdstore"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Engine     Engine         `json:"engine"`
	Limits     Limits         `json:"limits"`
	Log        logging.Config `json:"log"`
	Gateway    Gateway        `json:"gateway"`
	MarketData MarketData     `json:"market_data"`
	Snapshot   Snapshot       `json:"snapshot"`
	Admin      Admin          `json:"admin"`
}

type Engine struct {
	// CPU pins the engine thread; -1 leaves it to the scheduler.
	CPU int `json:"cpu"`
	// DepthEvery is the number of requests between depth publications
	// for the admin endpoint.
	DepthEvery  int `json:"depth_every"`
	DepthLevels int `json:"depth_levels"`
}

type Limits struct {
	MaxTickers         int `json:"max_tickers"`
	MaxClientUpdates   int `json:"max_client_updates"`
	MaxMarketUpdates   int `json:"max_market_updates"`
	MaxNumClients      int `json:"max_num_clients"`
	MaxOrderIDs        int `json:"max_order_ids"`
	MaxPriceLevels     int `json:"max_price_levels"`
	MaxPendingRequests int `json:"max_pending_requests"`
}

type Gateway struct {
	Addr          string   `json:"addr"`
	SequencerCPU  int      `json:"sequencer_cpu"`
	DispatcherCPU int      `json:"dispatcher_cpu"`
	PumpInterval  Duration `json:"pump_interval"`
	StreamBuffer  int      `json:"stream_buffer"`
}

type MarketData struct {
	CPU          int      `json:"cpu"`
	Brokers      []string `json:"brokers"`
	Topic        string   `json:"topic"`
	BatchTimeout Duration `json:"batch_timeout"`
	BatchSize    int      `json:"batch_size"`
	// SendTimeout bounds one incremental send; SinkBackoff is how long
	// the feed skips the broker after a failed send.
	SendTimeout Duration       `json:"send_timeout"`
	SinkBackoff Duration       `json:"sink_backoff"`
	MaxAttempts int            `json:"max_attempts"`
	Store       mdstore.Config `json:"store"`
}

type Snapshot struct {
	CPU      int      `json:"cpu"`
	Brokers  []string `json:"brokers"`
	Topic    string   `json:"topic"`
	Interval Duration `json:"interval"`
}

type Admin struct {
	Addr string `json:"addr"`
	// TickSize converts integer prices to decimals for display.
	TickSize string `json:"tick_size"`
}

// Duration accepts "250ms" style strings or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if len(b) > 0 && b[0] != '"' {
		s += "ns"
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "config: duration %s", b)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Default() Config {
	return Config{
		Engine: Engine{CPU: -1, DepthEvery: 1024, DepthLevels: 10},
		Limits: Limits{
			MaxTickers:         exchange.MaxTickers,
			MaxClientUpdates:   exchange.MaxClientUpdates,
			MaxMarketUpdates:   exchange.MaxMarketUpdates,
			MaxNumClients:      exchange.MaxNumClients,
			MaxOrderIDs:        exchange.MaxOrderIDs,
			MaxPriceLevels:     exchange.MaxPriceLevels,
			MaxPendingRequests: exchange.MaxPendingRequests,
		},
		Log: logging.DefaultConfig(),
		Gateway: Gateway{
			Addr:          ":50051",
			SequencerCPU:  -1,
			DispatcherCPU: -1,
			PumpInterval:  Duration(100 * time.Microsecond),
			StreamBuffer:  4096,
		},
		MarketData: MarketData{
			CPU:          -1,
			Brokers:      []string{"localhost:9092"},
			Topic:        "tachyon.md.incremental",
			BatchTimeout: Duration(time.Millisecond),
			BatchSize:    1,
			SendTimeout:  Duration(10 * time.Millisecond),
			SinkBackoff:  Duration(time.Second),
			MaxAttempts:  1,
			Store:        mdstore.Config{Retain: 1 << 20},
		},
		Snapshot: Snapshot{
			CPU:      -1,
			Brokers:  []string{"localhost:9092"},
			Topic:    "tachyon.md.snapshot",
			Interval: Duration(60 * time.Second),
		},
		Admin: Admin{Addr: ":8080", TickSize: "0.01"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	if err := sonnet.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: decode %s", path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	pow2 := func(name string, v int) error {
		if v <= 0 || v&(v-1) != 0 {
			return errors.Wrapf(ErrInvalid, "%s must be a power of two, got %d", name, v)
		}
		return nil
	}
	positive := func(name string, v int) error {
		if v <= 0 {
			return errors.Wrapf(ErrInvalid, "%s must be positive, got %d", name, v)
		}
		return nil
	}
	cpu := func(name string, v int) error {
		if v < -1 {
			return errors.Wrapf(ErrInvalid, "%s must be -1 or a cpu index, got %d", name, v)
		}
		return nil
	}

	l := c.Limits
	checks := []error{
		positive("limits.max_tickers", l.MaxTickers),
		pow2("limits.max_client_updates", l.MaxClientUpdates),
		pow2("limits.max_market_updates", l.MaxMarketUpdates),
		positive("limits.max_num_clients", l.MaxNumClients),
		positive("limits.max_order_ids", l.MaxOrderIDs),
		positive("limits.max_price_levels", l.MaxPriceLevels),
		positive("limits.max_pending_requests", l.MaxPendingRequests),
		pow2("log.queue_size", c.Log.QueueSize),
		positive("engine.depth_every", c.Engine.DepthEvery),
		positive("engine.depth_levels", c.Engine.DepthLevels),
		positive("gateway.stream_buffer", c.Gateway.StreamBuffer),
		positive("market_data.max_attempts", c.MarketData.MaxAttempts),
		cpu("engine.cpu", c.Engine.CPU),
		cpu("gateway.sequencer_cpu", c.Gateway.SequencerCPU),
		cpu("gateway.dispatcher_cpu", c.Gateway.DispatcherCPU),
		cpu("market_data.cpu", c.MarketData.CPU),
		cpu("snapshot.cpu", c.Snapshot.CPU),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if c.Gateway.PumpInterval <= 0 {
		return errors.Wrap(ErrInvalid, "gateway.pump_interval must be positive")
	}
	if c.MarketData.SendTimeout <= 0 {
		return errors.Wrap(ErrInvalid, "market_data.send_timeout must be positive")
	}
	if c.MarketData.SinkBackoff < 0 {
		return errors.Wrap(ErrInvalid, "market_data.sink_backoff must not be negative")
	}
	if c.Snapshot.Interval <= 0 {
		return errors.Wrap(ErrInvalid, "snapshot.interval must be positive")
	}
	if len(c.MarketData.Brokers) == 0 || c.MarketData.Topic == "" {
		return errors.Wrap(ErrInvalid, "market_data needs brokers and a topic")
	}
	if len(c.Snapshot.Brokers) == 0 || c.Snapshot.Topic == "" {
		return errors.Wrap(ErrInvalid, "snapshot needs brokers and a topic")
	}
	if _, err := c.TickSize(); err != nil {
		return err
	}
	return nil
}

// TickSize parses Admin.TickSize.
func (c Config) TickSize() (decimal.Decimal, error) {
	tick, err := decimal.NewFromString(c.Admin.TickSize)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalid, "admin.tick_size %q: %v", c.Admin.TickSize, err)
	}
	if !tick.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalid, "admin.tick_size must be positive, got %s", tick)
	}
	return tick, nil
}

// Kafka builds the incremental feed producer settings.
func (m MarketData) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:      m.Brokers,
		Topic:        m.Topic,
		BatchTimeout: m.BatchTimeout.Std(),
		BatchSize:    m.BatchSize,
		WriteTimeout: m.SendTimeout.Std(),
		MaxAttempts:  m.MaxAttempts,
	}
}

// Book returns the per-book sizing.
func (l Limits) Book() orderbook.Limits {
	return orderbook.Limits{
		MaxOrderIDs:    l.MaxOrderIDs,
		MaxNumClients:  l.MaxNumClients,
		MaxPriceLevels: l.MaxPriceLevels,
	}
}
