package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderfx/internal/client/currencylayer"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	// FXAccessKey — ключ доступа к провайдеру курсов. Никогда не логируется.
	FXAccessKey string
	FXBaseURL   string
	FXTimeout   time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// Пустой KafkaBrokers отключает публикацию событий outbox.
	KafkaBrokers []string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPendingAge — возраст backlog, после которого /healthz сообщает degraded.
	OutboxMaxPendingAge time.Duration
}

// DefaultConfig возвращает значения по умолчанию. Ключ доступа не задан.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		FXBaseURL:           currencylayer.DefaultBaseURL,
		FXTimeout:           currencylayer.DefaultTimeout,
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,
	}
}

// Validate проверяет обязательные параметры и согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.FXAccessKey) == "" {
		errs = append(errs, errors.New("ACCESS_KEY is required"))
	}
	if c.FXTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fx timeout must be > 0, got %s", c.FXTimeout))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if c.MetricsAddr == "" {
		errs = append(errs, errors.New("metrics address is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("ORDERFX_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must be >= 0"))
	}

	return errors.Join(errs...)
}
