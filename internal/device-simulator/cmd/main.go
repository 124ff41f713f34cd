package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	deviceSimulator "github.com/LeonardoBeccarini/smart_irrigation/internal/device-simulator"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/logging"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/rabbitmq"
)

func main() {
	device := flag.String("device", "esp32-1", "device identifier")
	clientID := flag.String("client-id", "", "MQTT client ID (default sim-<device>)")
	host := flag.String("host", "localhost", "MQTT broker host")
	port := flag.Int("port", 1883, "MQTT broker port")
	user := flag.String("user", "guest", "MQTT user")
	password := flag.String("password", "guest", "MQTT password")
	interval := flag.Duration("interval", 5*time.Second, "publish interval")
	lat := flag.Float64("lat", 41.51109, "latitude")
	lon := flag.Float64("lon", 12.37007, "longitude")
	rain := flag.Float64("rain-chance", 0.02, "per-sample chance of rain toggling")
	drop := flag.Float64("drop-rate", 0, "per-sample chance of omitting each critical sensor")
	tank := flag.Float64("tank", 1, "initial tank level in [0..1]")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.NewLogger(logging.Options{Level: *logLevel, Format: "console", Service: "device-simulator"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *clientID == "" {
		*clientID = "sim-" + *device
	}
	cfg := &rabbitmq.RabbitMQConfig{
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		ClientID: *clientID,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rabbitmq.NewRabbitMQConn(ctx, cfg, logger.Named("mqtt"))
	if err != nil {
		logger.Fatal("mqtt connect", zap.Error(err))
	}
	defer rabbitmq.CloseRabbitMQConn(client, logger)

	publisher := rabbitmq.NewPublisher(client, rabbitmq.TelemetryTopic(*device), logger.Named("mqtt"))
	consumer := rabbitmq.NewConsumer(client, rabbitmq.PumpTopic(*device), nil, logger.Named("mqtt"))

	// metà umidità persa in ~2h con pompa spenta
	halfLife := 2 * time.Hour
	generator := deviceSimulator.NewDataGenerator(deviceSimulator.GeneratorConfig{
		DecayPerMin: math.Log(2) / halfLife.Minutes() * 0.3,
		RainChance:  *rain,
		DropRate:    *drop,
		TankStart:   *tank,
	})
	if err := generator.SeedFromSoilGrids(ctx, *lat, *lon); err != nil {
		logger.Warn("soilgrids seed failed, using default", zap.Error(err))
	}

	sim := deviceSimulator.NewDeviceSimulator(*device, consumer, publisher, generator, logger)
	logger.Info("device simulator started", zap.String("device", *device), zap.Duration("interval", *interval))
	_ = sim.Start(ctx, *interval)
}
