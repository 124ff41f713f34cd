package main

import (
	"os"
	"strconv"
)

type Config struct {
	HTTPAddr string

	CoreTarget       string
	ConnectTimeoutMs int
	CallTimeoutMs    int

	// feed live condiviso e feed a cursore
	AlertPollMs  int
	CursorPollMs  int

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
		HTTPAddr: getenv("HTTP_ADDR", ":8090"),

		CoreTarget:       getenv("CORE_GRPC_TARGET", "localhost:50051"),
		ConnectTimeoutMs: getenvInt("RPC_CONNECT_TIMEOUT_MS", 3000),
		CallTimeoutMs:    getenvInt("RPC_CALL_TIMEOUT_MS", 5000),

		AlertPollMs:  getenvInt("ALERT_POLL_INTERVAL_MS", 2000),
		CursorPollMs: getenvInt("ALERT_CURSOR_INTERVAL_MS", 1000),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
		LogDir:    getenv("LOG_DIR", ""),
	}
}
