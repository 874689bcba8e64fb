package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mos/internal/domain"
	"github.com/vladislavdragonenkov/mos/internal/storage/memory"
	"github.com/vladislavdragonenkov/mos/internal/storage/postgres"
)

// Dependencies содержит репозитории приложения и открытое хранилище.
type Dependencies struct {
	Repo         domain.OrderRepository
	RefRepo      domain.ReferenceRepository
	OutboxRepo   domain.OutboxRepository
	TimelineRepo domain.TimelineRepository
	IdemRepo     domain.IdempotencyRepository
	Logger       *log.Entry

	// store не nil только для postgres-драйвера.
	store *postgres.Store
}

// NewDependencies инициализирует хранилище по cfg.StorageDriver и собирает
// репозитории поверх него.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		return &Dependencies{
			Repo:         memory.NewOrderRepository(),
			RefRepo:      memory.NewReferenceRepository(),
			OutboxRepo:   memory.NewOutboxRepository(),
			TimelineRepo: memory.NewTimelineRepository(),
			IdemRepo:     memory.NewIdempotencyRepository(),
			Logger:       logger,
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		return &Dependencies{
			Repo:         postgres.NewOrderRepository(store),
			RefRepo:      postgres.NewReferenceRepository(store),
			OutboxRepo:   postgres.NewOutboxRepository(store),
			TimelineRepo: postgres.NewTimelineRepository(store),
			IdemRepo:     postgres.NewIdempotencyRepository(store),
			Logger:       logger,
			store:        store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// PingStorage проверяет доступность хранилища; для in-memory всегда успешна.
func (d *Dependencies) PingStorage(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	return d.store.Ping(ctx)
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
