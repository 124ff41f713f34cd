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

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/rpc/irrigationrpc"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/irrigation"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store/memory"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store/postgres"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/logging"
)

func main() {
	cfg := loadConfig()

	logger, err := logging.NewLogger(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "irrigation-core",
		Dir:     cfg.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("irrigation core stopped", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := irrigation.NewMetrics(reg)

	// ---- Store ----
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DatabaseURL,
			MaxOpenConns:    cfg.DBMaxConns,
			MaxIdleConns:    cfg.DBMaxConns / 2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  cfg.DBConnTimeout,
		}, logger)
		if err != nil {
			return err
		}
		pg := postgres.New(db, logger.Named("postgres"))
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memory.New()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	g, gctx := errgroup.WithContext(ctx)

	// ---- Event log (Influx) ----
	var events irrigation.EventLog = irrigation.NopEventLog{}
	var ager irrigation.ErrorAger
	if cfg.InfluxURL != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		el := irrigation.NewInfluxEventLog(influx.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket), irrigation.EventLogConfig{
			QueueSize:    cfg.EventQueue,
			MaxFailures:  cfg.CBFails,
			OpenFor:      time.Duration(cfg.CBOpenMs) * time.Millisecond,
			FailInterval: time.Duration(cfg.CBIntervalMs) * time.Millisecond,
		}, logger.Named("eventlog"), metrics)
		g.Go(func() error {
			el.Run(gctx)
			return nil
		})
		events, ager = el, el
	}

	svc := irrigation.NewService(st, logger,
		irrigation.WithMetrics(metrics),
		irrigation.WithEventLog(events),
	)

	// ---- gRPC ----
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	gs := grpc.NewServer()
	irrigationrpc.RegisterIrrigationServer(gs, irrigation.NewGrpcHandler(svc, logger.Named("grpc")))
	hs := health.NewServer()
	hs.SetServingStatus(irrigationrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	g.Go(func() error {
		logger.Info("gRPC listening", zap.String("addr", cfg.GRPCAddr))
		return gs.Serve(lis)
	})

	// ---- HTTP (health + metrics) ----
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           irrigation.NewOpsMux(st, ager, svc.States(), reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ---- graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		hs.Shutdown()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		gs.GracefulStop()
		return nil
	})

	return g.Wait()
}
