package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"binlog-router/internal/binlog"
	"binlog-router/internal/checkpoint"
	"binlog-router/internal/config"
	"binlog-router/internal/fanout"
	"binlog-router/internal/health"
	"binlog-router/internal/logging"
	"binlog-router/internal/metrics"
	"binlog-router/internal/publisher"
	"binlog-router/internal/registry"
	"binlog-router/internal/router"
	"binlog-router/internal/transformer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("binlog router stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.GlobalMetrics
	ready := &health.Readiness{}
	health.Start(ctx, cfg.HealthAddr, health.Handler(ready, prometheus.DefaultGatherer), logger)
	if cfg.HealthAddr != "" {
		logger.Info("prometheus metrics available", zap.String("endpoint", cfg.HealthAddr+"/metrics"))
	}

	src, err := binlog.ParseSourceConfig(cfg.MySQLDSN, cfg.ServerID, cfg.Flavor)
	if err != nil {
		return err
	}

	tables, err := buildRegistry(cfg.TableRegistrySize)
	if err != nil {
		return err
	}

	store, cleanup := newCheckpointStore(cfg, logger)
	defer cleanup()
	ckpt := checkpoint.NewManager(store, cfg.CheckpointFreq, logger)

	reader := binlog.NewSyncReader(src, binlog.ReaderOptions{
		Checkpoints: ckpt,
		BufferSize:  cfg.PacketBufferSize,
		Metrics:     m,
		Logger:      logger,
	})
	rt := router.New(reader, router.Options{Tables: tables, Metrics: m, Logger: logger})

	filter, err := publisher.NewGlobFilter(cfg.TableFilters)
	if err != nil {
		return err
	}
	pub := buildPublisher(cfg, m, logger)
	if err := pub.Connect(); err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()
	fwd := publisher.NewForwarder(pub, transformer.NewSimpleTransformer(cfg.Database), publisher.ForwarderOptions{
		Database:   cfg.Database,
		Filter:     filter,
		MaxRetries: 3,
		Timeout:    cfg.NATSTimeout,
		Logger:     logger,
	})
	fwd.Attach(rt)

	connected := metrics.NewGauge("connected")
	rt.OnConnected(func() {
		ready.SetReady(true)
		connected.Set(1)
		logger.Info("binlog stream connected")
	})
	rt.OnDisconnected(func() {
		ready.SetReady(false)
		connected.Set(0)
		logger.Info("binlog stream disconnected")
	})
	rt.OnReconnecting(func() { logger.Info("binlog stream reconnecting") })
	rt.OnRecovering(func() { logger.Info("binlog stream recovering") })
	rt.OnError(func(err error) { logger.Warn("router error", zap.Error(err)) })
	subscribeDynamic(rt, cfg.DynamicSubscriptions, logger)

	metrics.NewReporter(cfg.StatsInterval, reader.Counters(), []*metrics.Gauge{connected}, logger).Start(ctx)

	logger.Info("starting binlog router",
		zap.Bool("debug", cfg.Debug),
		zap.String("host", src.Host),
		zap.Uint16("port", src.Port),
		zap.Uint32("server_id", cfg.ServerID),
		zap.String("flavor", src.Flavor),
		zap.String("db", cfg.Database),
		zap.Strings("table_filters", cfg.TableFilters),
		zap.Bool("dynamic_routing", rt.DynamicRouting()),
		zap.Int("packet_buffer", cfg.PacketBufferSize))

	if err := rt.Start(ctx); err != nil {
		return err
	}

	runErr := rt.Run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := rt.Stop(stopCtx); err != nil {
		logger.Warn("stop router", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func buildRegistry(size int) (*registry.Registry, error) {
	if size > 0 {
		return registry.NewBounded(size)
	}
	return registry.New(), nil
}

func buildPublisher(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) publisher.Publisher {
	if len(cfg.NATSURLs) == 0 {
		logger.Warn("NATS URLs missing, using noop publisher")
		return publisher.NewNoopPublisher()
	}
	return publisher.NewJetStreamPublisher(publisher.JetStreamOptions{
		URLs:           cfg.NATSURLs,
		Username:       cfg.NATSUsername,
		Password:       cfg.NATSPassword,
		ConnectTimeout: cfg.NATSTimeout,
		PublishTimeout: cfg.NATSTimeout,
		StreamName:     cfg.NATSStream,
	}, m, logger)
}

// subscribeDynamic logs every notification named in names. Any name outside the
// canonical set switches the router to dynamic fan-out.
func subscribeDynamic(rt *router.Router, names []string, logger *zap.Logger) {
	for _, name := range names {
		rt.On(name, func(ev fanout.Event) {
			logger.Info("notification", zap.String("name", ev.Name), zap.Strings("args", ev.Args))
		})
	}
}

// newCheckpointStore builds Redis-backed checkpoint store, falling back to in-memory if unavailable.
func newCheckpointStore(cfg config.Config, logger *zap.Logger) (checkpoint.Store, func()) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, using memory store", zap.String("url", cfg.RedisURL), zap.Error(err))
		return checkpoint.NewMemoryStore(), func() {}
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using memory store", zap.Error(err))
		_ = client.Close()
		return checkpoint.NewMemoryStore(), func() {}
	}
	store := checkpoint.NewRedisStore(client, cfg.CheckpointKey, cfg.CheckpointTTL)
	return store, func() { _ = client.Close() }
}
