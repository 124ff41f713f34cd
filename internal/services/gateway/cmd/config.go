package main

import (
	"os"
	"strconv"
)

type Config struct {
	Port string

	CoreTarget       string
	ConnectTimeoutMs int
	CallTimeoutMs    int

	// MQTT (RabbitMQ plugin); host vuoto = solo HTTP
	RabbitHost     string
	RabbitPort     int
	RabbitUser     string
	RabbitPassword string
	ClientID       string

	LogLevel  string
	LogFormat string
	LogDir    string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		CoreTarget:       getenv("CORE_GRPC_TARGET", "localhost:50051"),
		ConnectTimeoutMs: getenvInt("RPC_CONNECT_TIMEOUT_MS", 3000),
		CallTimeoutMs:    getenvInt("RPC_CALL_TIMEOUT_MS", 5000),

		RabbitHost:     getenv("RABBITMQ_HOST", ""),
		RabbitPort:     getenvInt("RABBITMQ_PORT", 1883),
		RabbitUser:     getenv("RABBITMQ_USER", "guest"),
		RabbitPassword: getenv("RABBITMQ_PASSWORD", "guest"),
		ClientID:       getenv("HOSTNAME", "irrigation-gateway"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
		LogDir:    getenv("LOG_DIR", ""),
	}
}
