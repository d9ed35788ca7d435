package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderfx/internal/domain"
	"github.com/vladislavdragonenkov/orderfx/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderfx/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по StorageDriver.
type runtimeDependencies struct {
	orders domain.OrderRepository
	refs   domain.ReferenceRepositories
	outbox domain.OutboxRepository
	// store не nil только для postgres; используется health checker'ом.
	store *postgres.Store
}

func (d *runtimeDependencies) Close() error {
	if d == nil || d.store == nil {
		return nil
	}
	return d.store.Close()
}

// initRuntimeDependencies открывает хранилище. Для postgres при необходимости применяет миграции.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.TrimSpace(cfg.StorageDriver)
	if driver == "" {
		driver = StorageDriverMemory
	}

	switch driver {
	case StorageDriverMemory:
		refs, _, _, _ := memory.NewReferenceRepositories()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			orders: memory.NewOrderRepository(),
			refs:   refs,
			outbox: memory.NewOutboxRepository(),
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required for postgres storage")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			version, count, err := store.MigrationStatus(ctx)
			if err != nil {
				logger.WithError(err).Warn("failed to read migration status")
			} else {
				logger.WithFields(log.Fields{"version": version, "applied": count}).Info("postgres schema is up to date")
			}
		}

		logger.Info("using postgres storage")
		return &runtimeDependencies{
			orders: postgres.NewOrderRepository(store),
			refs:   postgres.NewReferenceRepositories(store),
			outbox: postgres.NewOutboxRepository(store),
			store:  store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
