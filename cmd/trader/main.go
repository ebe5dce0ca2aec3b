package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"updown-trader/internal/cache"
	"updown-trader/internal/config"
	"updown-trader/internal/db"
	"updown-trader/internal/engine"
	"updown-trader/internal/execution"
	"updown-trader/internal/feed"
	"updown-trader/internal/handler"
	"updown-trader/internal/job"
	"updown-trader/internal/metrics"
	"updown-trader/internal/ml/quality"
	"updown-trader/internal/ml/registry"
	"updown-trader/internal/notify"
	"updown-trader/internal/performance"
	"updown-trader/internal/publish"
	"updown-trader/internal/repository"
	"updown-trader/internal/settlement"
	"updown-trader/internal/signalmeta"
	"updown-trader/pkg/logger"
	"updown-trader/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	loadStrategyFunc       = config.LoadStrategy
	initLoggerFunc         = logger.Init
	initTracerFunc         = tracing.InitTracer
	connectPostgresFunc    = db.Connect
	connectRedisFunc       = cache.Connect
	newTelegramFunc        = notify.NewTelegram
	newKafkaFunc           = publish.NewKafka
	startJobsFunc          = func(ctx context.Context, runner *job.TickRunner, settle *job.SettlementJob) { go runner.Start(ctx); go settle.Start(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func main() {
	if err := loadEnvFunc(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := loadConfigFunc()
	initLoggerFunc(cfg.LogLevel, cfg.LogFormat)

	strategy, err := loadStrategyFunc(cfg.StrategyFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.StrategyFile).Msg("failed to load strategy parameters")
	}
	if !cfg.PaperTrading && len(cfg.KafkaBrokers) == 0 {
		log.Fatal().Msg("live trading requires KAFKA_BROKERS for order handoff")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, cfg.TracingEnabled, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	pool, err := connectPostgresFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, running without trade mirror and model registry")
	}
	if pool != nil {
		defer pool.Close()
	}
	rdb, err := connectRedisFunc(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, market feed disabled and signal metadata kept in memory")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Optional collaborators stay nil interfaces when their backend is down.
	var (
		modelRegistry quality.ModelRegistry
		mirror        settlement.TradeMirror
		saver         job.TradeSaver
		trades        *repository.TradeRepository
	)
	if pool != nil {
		modelRegistry = registry.NewRepository(pool, tracer)
		trades = repository.NewTradeRepository(pool, tracer)
		mirror, saver = trades, trades
	}

	qualityCfg := strategy.Quality
	qualityCfg.Backend = cfg.QualityModel
	qualitySvc := quality.NewService(tracer, modelRegistry, qualityCfg)
	if err := qualitySvc.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to restore signal-quality model")
	}

	window := time.Duration(cfg.WindowMinutes) * time.Minute
	metaTTL := time.Duration(strategy.SignalMeta.TTLWindows * float64(window))
	var signals signalmeta.Store
	if rdb != nil {
		signals = signalmeta.NewRedisStore(rdb, metaTTL)
	} else {
		signals = signalmeta.NewMemoryStore(metaTTL, strategy.SignalMeta.MaxEntries)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(promRegistry)
	listeners := []settlement.Listener{recorder}

	var notifier *notify.Telegram
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		notifier, err = newTelegramFunc(cfg.TelegramBotToken, cfg.TelegramChatID, nil)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			listeners = append(listeners, notifier)
		}
	}

	perf := performance.NewRegistry(strategy.Performance)
	settleEngine := settlement.NewEngine(settlement.Config{
		WindowMinutes:     float64(cfg.WindowMinutes),
		DailyLossLimitUSD: cfg.DailyLossLimitUSD,
	}, settlement.Deps{
		Metadata:    signals,
		Performance: perf,
		Quality:     qualitySvc,
		Mirror:      mirror,
		Listeners:   listeners,
	}, tracer)
	if notifier != nil {
		notifier.SetStats(settleEngine)
	}

	if trades != nil {
		unresolved, err := trades.ListUnresolved(ctx, time.Now().UTC().Add(-3*window), 0)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load unresolved trades")
		} else if n := settleEngine.Restore(unresolved); n > 0 {
			log.Info().Int("trades", n).Msg("restored unresolved trades")
		}
	}

	session := engine.NewSession(*strategy, engine.SessionDeps{
		Performance: perf,
		Quality:     qualitySvc,
		Signals:     signals,
		Ledger:      settleEngine,
	}, tracer)

	var (
		marketFeed   job.MarketFeed
		settleSource job.SettlementSource
	)
	if rdb != nil {
		redisFeed := feed.NewRedisFeed(rdb, tracer, 3*time.Duration(cfg.TickIntervalSecs)*time.Second)
		marketFeed, settleSource = redisFeed, redisFeed
	}

	var executor execution.Executor = execution.NewPaperExecutor()
	if !cfg.PaperTrading {
		executor = execution.NewHandoffExecutor()
	}

	var publisher job.DecisionPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := newKafkaFunc(cfg.KafkaBrokers, cfg.KafkaTopic, tracer)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create decision publisher")
		}
		defer func() {
			if err := kafkaPub.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing decision publisher")
			}
		}()
		publisher = kafkaPub
	}

	runner := job.NewTickRunner(tracer, job.TickDeps{
		Feed:      marketFeed,
		Session:   session,
		Sizer:     execution.FixedStakeSizer{StakeUSD: cfg.StakeUSD},
		Executor:  executor,
		Saver:     saver,
		Publisher: publisher,
		Recorder:  recorder,
	}, cfg.Markets, cfg.TickIntervalSecs)
	settleJob := job.NewSettlementJob(tracer, settleSource, settleEngine, signals, cfg.SettlePollSecs)
	startJobsFunc(ctx, runner, settleJob)
	if notifier != nil {
		go notifier.Start(ctx)
	}

	h := handler.New(tracer, settleEngine, session)
	h.SetQualityModel(qualitySvc)

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))
	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()
	log.Info().Strs("markets", cfg.Markets).Bool("paper", cfg.PaperTrading).Str("addr", srv.Addr).Msg("trader started")

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	stats := settleEngine.Stats()
	log.Info().Int("trades", stats.TotalTrades).Float64("pnl", stats.TotalPnL).Int("pending", stats.Pending).Msg("trader exiting")
}
