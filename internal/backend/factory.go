package backend

import (
	"context"
	"errors"
	"fmt"

	"wydatki/internal/amqp"
	"wydatki/internal/log"
	"wydatki/internal/storage/memory"
	"wydatki/internal/storage/mongodb"
	"wydatki/internal/storage/postgres"
	"wydatki/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentStorage),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case MongoBackend:
		return f.createMongoBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*BackendResult, error) {
	store := memory.New()

	f.logger.InfoContext(ctx, "Initialized memory backend")

	return &BackendResult{
		Store: store,
		Ping:  func(context.Context) error { return nil },
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := sqlite.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP fan-out is optional; without it only this process sees changes live.
	var amqpClient *amqp.Client
	stopConsumer := func() {}
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without fan-out", log.FieldError, err)
		} else {
			repo.SetPublisher(amqpClient)
			amqpClient.OnConnect(repo.Hub().ResyncOnReconnect())

			consumeCtx, cancel := context.WithCancel(context.Background())
			consumerDone := make(chan struct{})
			go func() {
				defer close(consumerDone)
				if err := amqpClient.Consume(consumeCtx, amqp.ForwardTo(repo.Hub())); err != nil && !errors.Is(err, context.Canceled) {
					f.logger.ErrorContext(consumeCtx, "AMQP consumer stopped", log.FieldError, err)
				}
			}()
			stopConsumer = func() {
				cancel()
				<-consumerDone
			}

			f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", config.AMQPExchange)
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Store: repo,
		Ping:  repo.Ping,
		Cleanup: func() error {
			stopConsumer()
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := postgres.NewRepository(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized PostgreSQL backend", "channel", postgres.Channel)

	return &BackendResult{
		Store:   repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := mongodb.ConnectToMongoDB(ctx, config.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	provider := mongodb.NewProvider(client, config.MongoDatabase)

	f.logger.InfoContext(ctx, "Initialized MongoDB backend", "database", config.MongoDatabase)

	return &BackendResult{
		Store: mongodb.NewRepository(provider),
		Ping:  provider.Ping,
		Cleanup: func() error {
			return provider.Disconnect(context.Background())
		},
	}, nil
}
