package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alejandrodnm/buylist/config"
	"github.com/alejandrodnm/buylist/internal/adapters/cache"
	"github.com/alejandrodnm/buylist/internal/adapters/collection"
	"github.com/alejandrodnm/buylist/internal/adapters/export"
	"github.com/alejandrodnm/buylist/internal/adapters/journal"
	"github.com/alejandrodnm/buylist/internal/adapters/metrics"
	"github.com/alejandrodnm/buylist/internal/adapters/notify"
	"github.com/alejandrodnm/buylist/internal/adapters/sources"
	"github.com/alejandrodnm/buylist/internal/adapters/storage"
	"github.com/alejandrodnm/buylist/internal/application/aggregator"
	"github.com/alejandrodnm/buylist/internal/application/pipeline"
	"github.com/alejandrodnm/buylist/internal/application/pricecache"
	"github.com/alejandrodnm/buylist/internal/application/signals"
	"github.com/alejandrodnm/buylist/internal/application/viewcache"
	"github.com/alejandrodnm/buylist/internal/ports"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one refresh cycle and exit")
	force := flag.Bool("force", false, "ignore cached prices and query every source")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables (default: compact 1-line)")
	status := flag.Bool("status", false, "print cache, history and source status and exit")
	view := flag.String("view", "", "print a view as JSON and exit: dashboard|market|hot|recommendations")
	runs := flag.Int("runs", 0, "print the last N journaled batches and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("buylist starting",
		"config", *configPath,
		"collection", cfg.Collection.Path,
		"interval", cfg.Aggregator.Interval,
		"once", *once,
		"force", *force,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	recorder := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := serveMetrics(ctx, cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server failed", "err", err, "addr", cfg.Metrics.Addr)
			}
		}()
	}

	var views ports.ViewStore = store
	if cfg.Redis.Addr != "" {
		l1 := cache.NewMemoryStore(
			cache.WithMaxSize(cfg.Cache.MemorySize),
			cache.WithCleanupInterval(5*time.Minute),
		)
		defer l1.Close()
		l2, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "err", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		defer l2.Close()
		views = cache.NewLayeredStore(l1, l2, 0)
	}

	var wal *journal.WALJournal
	if cfg.Journal.Dir != "" {
		wal, err = journal.NewWALJournal(cfg.Journal.Dir, cfg.Journal.MaxSegments)
		if err != nil {
			slog.Error("failed to open journal", "err", err, "dir", cfg.Journal.Dir)
			os.Exit(1)
		}
		defer wal.Close()
	}

	if *runs > 0 {
		if wal == nil {
			slog.Error("journal is disabled: set journal.dir")
			os.Exit(1)
		}
		if err := printRuns(os.Stdout, wal, *runs); err != nil {
			slog.Error("failed to read journal", "err", err)
			os.Exit(1)
		}
		return
	}

	srcs, err := sources.FromConfig(cfg.Sources)
	if err != nil {
		slog.Error("invalid sources", "err", err)
		os.Exit(1)
	}
	if len(srcs) == 0 {
		slog.Warn("no quote sources configured: every card will be unpriced")
	}

	aggOpts := []aggregator.Option{aggregator.WithMetrics(recorder)}
	if wal != nil {
		aggOpts = append(aggOpts, aggregator.WithJournal(wal))
	}
	agg := aggregator.New(aggregator.Config{
		Workers:  cfg.Aggregator.Workers,
		Deadline: cfg.Aggregator.Deadline,
	}, srcs, aggOpts...)

	prices := pricecache.New(store, pricecache.Config{
		Freshness:  cfg.Cache.Freshness,
		MemorySize: cfg.Cache.MemorySize,
	}, pricecache.WithMetrics(recorder))

	viewCache := viewcache.New(views, viewcache.TTLs{
		Dashboard:       cfg.Cache.DashboardTTL,
		MarketAnalysis:  cfg.Cache.MarketTTL,
		HotCards:        cfg.Cache.HotTTL,
		Recommendations: cfg.Cache.RecommendationsTTL,
	}, viewcache.WithMetrics(recorder))

	hotCfg := signals.DefaultHotConfig()
	hotCfg.SpikePercent = cfg.Hot.SpikePercent
	hotCfg.MovePercent = cfg.Hot.MovePercent
	hotCfg.MinPoints = cfg.Hot.MinPoints
	hotCfg.ScoreThreshold = cfg.Hot.ScoreThreshold

	recCfg := signals.DefaultRecommendConfig()
	recCfg.HistoryDays = cfg.Recommend.HistoryDays
	recCfg.HoldHistoryDays = cfg.Recommend.HistoryDays
	recCfg.MaxPerAction = cfg.Recommend.MaxPerAction
	recCfg.SellAbovePercent = cfg.Recommend.SellAbovePercent
	recCfg.BuyBelowPercent = cfg.Recommend.BuyBelowPercent

	marketCfg := signals.MarketConfig{
		WindowDays: cfg.Market.WindowDays,
		EMAPeriod:  cfg.Market.EMAPeriod,
	}

	notifiers := []ports.Notifier{notify.NewConsole(*table)}
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			slog.Error("failed to create kafka publisher", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		notifiers = append(notifiers, pub)
	}
	if cfg.Export.Path != "" {
		notifiers = append(notifiers, export.NewXLSXExporter(cfg.Export.Path))
	}

	p := pipeline.New(pipeline.Config{
		Interval:       cfg.Aggregator.Interval,
		HotWindowDays:  cfg.History.WindowDays,
		RetentionDays:  cfg.History.RetentionDays,
		CacheRetention: cfg.Cache.CleanupAfter,
		Once:           *once,
	}, pipeline.Deps{
		Collection: collection.NewYAMLReader(cfg.Collection.Path),
		Aggregator: agg,
		Prices:     prices,
		Views:      viewCache,
		History:    store,
		Hot:        signals.NewHotCardDetector(store, hotCfg),
		Recommend:  signals.NewRecommendationEngine(store, recCfg),
		Market:     signals.NewMarketAnalyzer(store, marketCfg, hotCfg),
		Notifiers:  notifiers,
		Metrics:    recorder,
	})

	switch {
	case *status:
		if err := printStatus(ctx, os.Stdout, prices, store, wal, agg.SourceNames()); err != nil {
			slog.Error("status failed", "err", err)
			os.Exit(1)
		}
		return
	case *view != "":
		if err := printView(ctx, os.Stdout, p, *view, *force); err != nil {
			slog.Error("view failed", "err", err, "view", *view)
			os.Exit(1)
		}
		return
	case *force:
		if _, err := p.Refresh(ctx, true); err != nil {
			slog.Error("forced refresh failed", "err", err)
			os.Exit(1)
		}
		if *once {
			return
		}
	}

	if err := p.Run(ctx); err != nil {
		slog.Error("pipeline exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("buylist stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
