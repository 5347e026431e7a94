package backend

import (
	"context"
	"errors"
	"fmt"

	"shoplist/internal/amqp"
	"shoplist/internal/log"
	"shoplist/internal/services"
	"shoplist/internal/storage"
	"shoplist/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the configured store, connects to the broker when one
// is configured and builds the services. A broker that cannot be reached is
// logged and skipped; list mutations then simply publish nothing.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(config)
	if err != nil {
		return nil, err
	}

	var events *amqp.Client
	if config.AMQPURL != "" {
		events, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without list events", "error", err)
			events = nil
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	// A nil *amqp.Client must not become a non-nil Publisher.
	var publisher services.Publisher
	if events != nil {
		publisher = events
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type.String(),
		"events_enabled", events != nil,
		"alert_yellow_ratio", config.Policy.YellowRatio.String(),
		"alert_red_ratio", config.Policy.RedRatio.String())

	return &BackendResult{
		Store:  store,
		Events: events,
		Lists:  services.NewListService(store, publisher, config.Policy),
		Users:  services.NewUserService(store),
		Cleanup: func() error {
			var errs []error
			if events != nil {
				errs = append(errs, events.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) openStore(config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized in-memory store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
