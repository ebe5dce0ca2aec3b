package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"updown-trader/internal/config"
	"updown-trader/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobsStarted := false
	var srvAddr string
	restore := stubTraderDeps(t, &jobsStarted, &srvAddr)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
	if !jobsStarted {
		t.Fatal("expected jobs to be started")
	}
	if srvAddr != ":9090" {
		t.Fatalf("unexpected server addr %q", srvAddr)
	}
}

func stubTraderDeps(t *testing.T, jobsStarted *bool, srvAddr *string) func() {
	t.Helper()
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origPostgres := connectPostgresFunc
	origRedis := connectRedisFunc
	origStartJobs := startJobsFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return errors.New("no .env") }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			HTTPPort:         9090,
			LogLevel:         "error",
			LogFormat:        "json",
			Markets:          []string{"BTC", "ETH"},
			TickIntervalSecs: 1,
			SettlePollSecs:   1,
			WindowMinutes:    15,
			PaperTrading:     true,
			StakeUSD:         5,
			QualityModel:     "logreg",
		}
	}
	initTracerFunc = func(ctx context.Context, enabled bool, endpoint string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	connectPostgresFunc = func(context.Context, string) (*pgxpool.Pool, error) { return nil, nil }
	connectRedisFunc = func(context.Context, string) (*redis.Client, error) { return nil, errors.New("connection refused") }
	startJobsFunc = func(ctx context.Context, runner *job.TickRunner, settle *job.SettlementJob) {
		*jobsStarted = runner != nil && settle != nil
	}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(srv *http.Server) error {
		return http.ErrServerClosed
	}
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error {
		*srvAddr = srv.Addr
		return nil
	}

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		connectPostgresFunc = origPostgres
		connectRedisFunc = origRedis
		startJobsFunc = origStartJobs
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
