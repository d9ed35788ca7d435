package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderfx/internal/app"
)

const (
	envAccessKey           = "ACCESS_KEY"
	envFXBaseURL           = "FX_BASE_URL"
	envFXTimeout           = "FX_TIMEOUT"
	envGRPCAddr            = "ORDERFX_GRPC_ADDR"
	envMetricsAddr         = "ORDERFX_METRICS_ADDR"
	envStorageDriver       = "ORDERFX_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERFX_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERFX_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envOutboxPollInterval  = "ORDERFX_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ORDERFX_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ORDERFX_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ORDERFX_OUTBOX_RETRY_DELAY"
	envOutboxMaxPendingAge = "ORDERFX_OUTBOX_MAX_PENDING_AGE"
	envLogLevel            = "ORDERFX_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv собирает конфигурацию из окружения.
// Некорректные необязательные значения оставляют значение по умолчанию и дают предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("invalid %s=%q: %v, using default", key, value, err))
	}

	if v, ok := lookupTrimmed(lookup, envAccessKey); ok {
		cfg.FXAccessKey = v
	}
	if v, ok := lookupTrimmed(lookup, envFXBaseURL); ok {
		cfg.FXBaseURL = v
	}
	if v, ok := lookupTrimmed(lookup, envGRPCAddr); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookupTrimmed(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	if v, ok := lookupTrimmed(lookup, envPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := lookupTrimmed(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitBrokers(v)
	}

	if v, ok := lookupTrimmed(lookup, envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	durations := []struct {
		key     string
		target  *time.Duration
		valid   func(time.Duration) bool
		message string
	}{
		{envFXTimeout, &cfg.FXTimeout, positiveDuration, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0"},
		{envOutboxMaxPendingAge, &cfg.OutboxMaxPendingAge, nonNegativeDuration, "must be >= 0"},
	}
	for _, d := range durations {
		v, ok := lookupTrimmed(lookup, d.key)
		if !ok {
			continue
		}
		parsed, err := parseDuration(v, d.valid, d.message)
		if err != nil {
			warn(d.key, v, err)
			continue
		}
		*d.target = parsed
	}

	ints := []struct {
		key    string
		target *int
	}{
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, i := range ints {
		v, ok := lookupTrimmed(lookup, i.key)
		if !ok {
			continue
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(i.key, v, err)
			continue
		}
		*i.target = parsed
	}

	return cfg, warnings
}

// readLogLevel возвращает уровень логирования; по умолчанию info.
func readLogLevel(lookup envLookup) (log.Level, error) {
	v, ok := lookupTrimmed(lookup, envLogLevel)
	if !ok {
		return log.InfoLevel, nil
	}
	level, err := log.ParseLevel(v)
	if err != nil {
		return log.InfoLevel, err
	}
	return level, nil
}

// lookupTrimmed считает пустое значение (или только пробелы) отсутствующим.
func lookupTrimmed(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, part := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, errors.New("expected boolean value")
	}
}

func parseInt(raw string, valid func(int) bool, message string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.New("expected integer value")
	}
	if !valid(value) {
		return 0, errors.New(message)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, message string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.New("expected duration value")
	}
	if !valid(value) {
		return 0, errors.New(message)
	}
	return value, nil
}

func positiveDuration(d time.Duration) bool { return d > 0 }

func nonNegativeDuration(d time.Duration) bool { return d >= 0 }
