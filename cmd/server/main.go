package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"tachyon/api/admin"
	"tachyon/api/grpcserver"
	"tachyon/config"
	"tachyon/domain/exchange"
	"tachyon/infra/kafka"
	"tachyon/infra/logging"
	"tachyon/infra/mdstore"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
	"tachyon/jobs/publisher"
	"tachyon/jobs/snapshot"
	"tachyon/service"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file; defaults apply when empty")
	logLevel := flag.String("log-level", "", "overrides log.level from the config")
	flag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "tachyon: %+v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string) error {
	// ---------------- Config ----------------

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	tick, err := cfg.TickSize()
	if err != nil {
		return err
	}

	// ---------------- Logging / Metrics ----------------

	zl, err := logging.NewZap(cfg.Log)
	if err != nil {
		return err
	}
	defer zl.Sync()

	engineLog := logging.New("engine", zl, cfg.Log.QueueSize)
	defer engineLog.Close()
	publisherLog := logging.New("publisher", zl, cfg.Log.QueueSize)
	defer publisherLog.Close()
	snapshotLog := logging.New("snapshot", zl, cfg.Log.QueueSize)
	defer snapshotLog.Close()

	reg := metrics.NewRegistry()
	mdMetrics := metrics.NewMarketData(reg)

	// ---------------- Queues ----------------

	requests := queue.NewSPSC[exchange.ClientRequest](cfg.Limits.MaxClientUpdates)
	responses := queue.NewSPSC[exchange.ClientResponse](cfg.Limits.MaxClientUpdates)
	updates := queue.NewSPSC[exchange.MarketUpdate](cfg.Limits.MaxMarketUpdates)
	snapshotUpdates := queue.NewSPSC[exchange.PubMarketUpdate](cfg.Limits.MaxMarketUpdates)

	// ---------------- Market data sinks ----------------

	incremental := kafka.NewProducer(cfg.MarketData.Kafka())
	defer incremental.Close()

	store, err := mdstore.Open(cfg.MarketData.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	snapshotProducer, err := snapshot.NewSyncProducer(cfg.Snapshot.Brokers)
	if err != nil {
		return err
	}
	defer snapshotProducer.Close()

	// ---------------- Components ----------------

	depth := service.NewDepthPublisher(cfg.Limits.MaxTickers)
	engine := service.NewMatchingEngine(
		service.Config{
			Tickers:     cfg.Limits.MaxTickers,
			Limits:      cfg.Limits.Book(),
			CPU:         cfg.Engine.CPU,
			DepthEvery:  cfg.Engine.DepthEvery,
			DepthLevels: cfg.Engine.DepthLevels,
		},
		requests.Consumer(),
		responses.Producer(),
		updates.Producer(),
		engineLog,
		metrics.NewEngine(reg),
		depth,
	)

	pub := publisher.New(
		publisher.Config{
			CPU:         cfg.MarketData.CPU,
			Retain:      cfg.MarketData.Store.Retain,
			SendTimeout: cfg.MarketData.SendTimeout.Std(),
			SinkBackoff: cfg.MarketData.SinkBackoff.Std(),
		},
		updates.Consumer(),
		snapshotUpdates.Producer(),
		incremental,
		store,
		publisherLog,
		mdMetrics,
	)

	synth := snapshot.New(
		snapshot.Config{
			CPU:       cfg.Snapshot.CPU,
			Topic:     cfg.Snapshot.Topic,
			Interval:  cfg.Snapshot.Interval.Std(),
			Tickers:   cfg.Limits.MaxTickers,
			MaxOrders: cfg.Limits.MaxOrderIDs,
		},
		snapshotUpdates.Consumer(),
		snapshotProducer,
		snapshotLog,
		mdMetrics,
	)

	gateway := grpcserver.New(
		grpcserver.Config{
			MaxNumClients:      cfg.Limits.MaxNumClients,
			MaxPendingRequests: cfg.Limits.MaxPendingRequests,
			PumpInterval:       cfg.Gateway.PumpInterval.Std(),
			StreamBuffer:       cfg.Gateway.StreamBuffer,
			SequencerCPU:       cfg.Gateway.SequencerCPU,
			DispatcherCPU:      cfg.Gateway.DispatcherCPU,
		},
		requests.Producer(),
		responses.Consumer(),
		zl.Named("gateway"),
		metrics.NewGateway(reg),
	)

	adminSrv := admin.New(admin.Config{Addr: cfg.Admin.Addr, TickSize: tick}, depth, reg, zl.Named("admin"))

	// ---------------- Start (downstream first) ----------------

	// components stop through Stop, never through ctx, so shutdown
	// follows the order below
	ctx := context.Background()

	if err := synth.Start(ctx); err != nil {
		return err
	}
	defer stop(synth)
	if err := pub.Start(ctx); err != nil {
		return err
	}
	defer stop(pub)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer stop(engine)
	if err := gateway.Start(ctx); err != nil {
		return err
	}
	defer gateway.Stop()

	// ---------------- Listeners ----------------

	gwLis, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return errors.Wrap(err, "gateway: listen")
	}
	adminLis, err := net.Listen("tcp", cfg.Admin.Addr)
	if err != nil {
		gwLis.Close()
		return errors.Wrap(err, "admin: listen")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			zl.Warn("admin shutdown", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 2)
	go func() { serveErr <- gateway.Serve(gwLis) }()
	go func() { serveErr <- adminSrv.Serve(adminLis) }()

	zl.Info("tachyon running",
		zap.String("gateway", cfg.Gateway.Addr),
		zap.String("admin", cfg.Admin.Addr),
		zap.Int("tickers", cfg.Limits.MaxTickers))

	// ---------------- Wait ----------------

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case <-sigCtx.Done():
		zl.Info("shutting down")
		return nil
	case err := <-serveErr:
		return err
	}
}

type stoppable interface {
	Stop()
	Done() <-chan struct{}
}

func stop(c stoppable) {
	c.Stop()
	<-c.Done()
}
