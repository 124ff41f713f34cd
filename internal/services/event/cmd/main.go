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

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/event"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/logging"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

const pumpWildcard = "devices/+/pump"

func main() {
	cfg := loadConfig()

	logger, err := logging.NewLogger(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "event-service",
		Dir:     cfg.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("event service stopped", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- InfluxDB ----
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.BatchSize)).
		SetFlushInterval(uint(cfg.FlushInterval))
	influx := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	// Close fa anche il flush dei punti in coda
	defer influx.Close()
	writeAPI := influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket)
	writer := event.NewWriter(writeAPI, logger.Named("influx"))

	// ---- MQTT ----
	client, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
		Host:     cfg.RabbitHost,
		Port:     cfg.RabbitPort,
		User:     cfg.RabbitUser,
		Password: cfg.RabbitPassword,
		ClientID: cfg.ClientID,
	}, logger.Named("mqtt"))
	if err != nil {
		return err
	}
	defer rabbitmq.CloseRabbitMQConn(client, logger)

	h := event.NewMQTTHandler(writer.Write)
	consumer := rabbitmq.NewConsumer(client, pumpWildcard, h.Handle, logger.Named("mqtt"))

	// ---- HTTP ----
	mux := http.NewServeMux()
	mux.Handle("/healthz", event.NewHealthHandler(client, writer))
	mux.Handle("/readyz", event.NewReadyHandler(client, writer, 2*time.Second))
	mux.Handle("/events", event.NewTimelineHandler(influx.QueryAPI(cfg.InfluxOrg), cfg.InfluxBucket, logger))
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.ConsumeMessage(gctx) })
	g.Go(func() error {
		logger.Info("event-svc: HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("event-svc: shutting down...")
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shCtx)
	})
	return g.Wait()
}
