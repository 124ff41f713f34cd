package main

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string

	RabbitHost     string
	RabbitPort     int
	RabbitUser     string
	RabbitPassword string
	ClientID       string

	InfluxURL     string
	InfluxToken   string
	InfluxOrg     string
	InfluxBucket  string
	BatchSize     int
	FlushInterval int // ms

	LogLevel  string
	LogFormat string
	LogDir    string
}

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}
func getenvInt(k string, d int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8082"),

		RabbitHost:     getenv("RABBITMQ_HOST", "localhost"),
		RabbitPort:     getenvInt("RABBITMQ_PORT", 1883),
		RabbitUser:     getenv("RABBITMQ_USER", "guest"),
		RabbitPassword: getenv("RABBITMQ_PASSWORD", "guest"),
		ClientID:       getenv("HOSTNAME", "event-service"),

		InfluxURL:     getenv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:   os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:     getenv("INFLUX_ORG", "irrigation"),
		InfluxBucket:  getenv("INFLUX_BUCKET", "events"),
		BatchSize:     getenvInt("WRITE_BATCH_SIZE", 10),
		FlushInterval: getenvInt("WRITE_FLUSH_INTERVAL_MS", 200),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
		LogDir:    getenv("LOG_DIR", ""),
	}
}
