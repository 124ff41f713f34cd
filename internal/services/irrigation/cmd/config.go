package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GRPCAddr string
	HTTPAddr string

	DatabaseURL   string
	DBMaxConns    int
	DBConnTimeout time.Duration

	// Influx event log (opzionale: vuoto = disabilitato)
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	EventQueue   int
	CBFails      int
	CBOpenMs     int
	CBIntervalMs int

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
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return d
}

func getenvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dd, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return dd
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		GRPCAddr: getenv("GRPC_ADDR", ":50051"),
		HTTPAddr: getenv("HTTP_ADDR", ":8081"),

		DatabaseURL:   getenv("DATABASE_URL", ""),
		DBMaxConns:    getenvInt("DB_MAX_CONNS", 10),
		DBConnTimeout: getenvDuration("DB_CONNECT_TIMEOUT", 30*time.Second),

		InfluxURL:    getenv("INFLUX_URL", ""),
		InfluxToken:  getenv("INFLUX_TOKEN", ""),
		InfluxOrg:    getenv("INFLUX_ORG", "sdcc"),
		InfluxBucket: getenv("INFLUX_BUCKET", "irrigation"),
		EventQueue:   getenvInt("EVENT_QUEUE_SIZE", 1024),
		CBFails:      getenvInt("CB_INFLUX_FAILS", 3),
		CBOpenMs:     getenvInt("CB_INFLUX_OPEN_MS", 15000),
		CBIntervalMs: getenvInt("CB_INFLUX_INTERVAL_MS", 60000),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
		LogDir:    getenv("LOG_DIR", ""),
	}
}
