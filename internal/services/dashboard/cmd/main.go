package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/rpc/irrigationrpc"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/dashboard"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/logging"
)

func main() {
	cfg := loadConfig()

	logger, err := logging.NewLogger(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "irrigation-dashboard",
		Dir:     cfg.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := dashboard.NewMetrics(reg)

	// ---- core ----
	core := irrigationrpc.Dial(irrigationrpc.RemoteConfig{
		Target:         cfg.CoreTarget,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
		CallTimeout:    time.Duration(cfg.CallTimeoutMs) * time.Millisecond,
		OnReconnect:    metrics.OnReconnect,
		OnRetry:        metrics.OnRetry,
	}, logger.Named("rpc"))
	defer core.Close()

	// ---- alert feeds ----
	b := dashboard.NewBroadcaster(core, time.Duration(cfg.AlertPollMs)*time.Millisecond, logger.Named("alerts"), metrics)
	defer b.Close()
	cursor := dashboard.NewCursorStream(core, time.Duration(cfg.CursorPollMs)*time.Millisecond, logger.Named("alerts"))

	api := dashboard.NewAPI(core, b, cursor, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(reg),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("dashboard listening", zap.String("addr", srv.Addr), zap.String("core", cfg.CoreTarget))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// gli stream SSE si chiudono con BaseContext
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
	return g.Wait()
}
