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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/rpc/irrigationrpc"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/gateway"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/logging"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

func main() {
	cfg := loadConfig()

	logger, err := logging.NewLogger(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "irrigation-gateway",
		Dir:     cfg.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(reg)

	// ---- core (gRPC, reconnect + retry) ----
	core := irrigationrpc.Dial(irrigationrpc.RemoteConfig{
		Target:         cfg.CoreTarget,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
		CallTimeout:    time.Duration(cfg.CallTimeoutMs) * time.Millisecond,
		OnReconnect:    metrics.OnReconnect,
		OnRetry:        metrics.OnRetry,
	}, logger.Named("rpc"))
	defer core.Close()

	g, gctx := errgroup.WithContext(ctx)

	// ---- MQTT (opzionale) ----
	var client mqtt.Client
	var factory gateway.PublisherFactory
	if cfg.RabbitHost != "" {
		c, err := rabbitmq.NewRabbitMQConn(ctx, &rabbitmq.RabbitMQConfig{
			Host:     cfg.RabbitHost,
			Port:     cfg.RabbitPort,
			User:     cfg.RabbitUser,
			Password: cfg.RabbitPassword,
			ClientID: cfg.ClientID,
		}, logger.Named("mqtt"))
		if err != nil {
			return err
		}
		defer rabbitmq.CloseRabbitMQConn(c, logger)
		client = c
		factory = func(topic string) rabbitmq.IPublisher {
			return rabbitmq.NewPublisher(c, topic, logger.Named("mqtt"))
		}
	}

	// la risposta al device copre tentativo, riconnessione e retry
	budget := time.Duration(2*cfg.CallTimeoutMs+cfg.ConnectTimeoutMs) * time.Millisecond
	gw := gateway.New(core, factory, budget, logger, metrics)

	if client != nil {
		consumer := rabbitmq.NewConsumer(client, rabbitmq.TelemetryWildcard, gw.HandleTelemetry, logger.Named("mqtt"))
		g.Go(func() error { return consumer.ConsumeMessage(gctx) })
	}

	var ready func() bool
	if client != nil {
		ready = client.IsConnectionOpen
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gw.Router(reg, ready),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("gateway listening", zap.String("addr", srv.Addr), zap.String("core", cfg.CoreTarget))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	return g.Wait()
}
