package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

// StoreDriver selects the persistence backend.
//
// Set via env:
// - STORE_DRIVER=mysql (default) | memory
func StoreDriver() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if v == StoreDriverMemory {
		return StoreDriverMemory
	}
	return StoreDriverMySQL
}

// NumberingMaxRetries bounds the compare-and-insert loop of receipt numbering.
func NumberingMaxRetries() int {
	n := intFromEnv("NUMBERING_MAX_RETRIES", 5)
	if n <= 0 {
		return 5
	}
	return n
}

// StockLockTimeout bounds how long a transaction waits for a locked stock row.
func StockLockTimeout() time.Duration {
	n := intFromEnv("STOCK_LOCK_TIMEOUT_SECONDS", 5)
	if n <= 0 {
		n = 5
	}
	return time.Duration(n) * time.Second
}

func FiscalSidecarURL() string {
	return strings.TrimRight(strings.TrimSpace(os.Getenv("FISCAL_SIDECAR_URL")), "/")
}

func FiscalCUIT() string {
	return strings.TrimSpace(os.Getenv("FISCAL_CUIT"))
}

func FiscalTimeout() time.Duration {
	n := intFromEnv("FISCAL_TIMEOUT_SECONDS", 30)
	if n <= 0 {
		n = 30
	}
	return time.Duration(n) * time.Second
}

func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS")
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// OutboxDispatcherDisabled keeps the server from draining the fiscal outbox,
// for deployments where a separate worker owns it.
func OutboxDispatcherDisabled() bool {
	return boolFromEnv("OUTBOX_DISPATCHER_DISABLED")
}
