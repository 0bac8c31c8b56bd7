package main

import (
	"context"
	"fmt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/config"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

// Seams for tests.
var (
	openSQL         = store.OpenDB
	migrateSQL      = store.Migrate
	newDynamoClient = func(ctx context.Context, region, endpoint string) (store.DynamoAPI, error) {
		return store.NewDynamoClient(ctx, region, endpoint)
	}
)

// backend is an opened store plus the hooks its lifecycle needs.
type backend struct {
	name    string
	store   store.Store
	migrate func(ctx context.Context) error
	close   func() error
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig, log logging.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn(ctx, "using the in-memory store, data is lost on exit")
		return &backend{
			name:    cfg.Backend,
			store:   store.NewMemory(),
			migrate: func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil

	case config.BackendPostgres:
		db, err := openSQL(ctx, cfg.Driver, cfg.URL)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "database connection established", "driver", cfg.Driver)
		return &backend{
			name:    cfg.Backend,
			store:   store.NewPostgres(db),
			migrate: func(ctx context.Context) error { return migrateSQL(ctx, db) },
			close:   db.Close,
		}, nil

	case config.BackendDynamoDB:
		client, err := newDynamoClient(ctx, cfg.Dynamo.Region, cfg.Dynamo.Endpoint)
		if err != nil {
			return nil, err
		}
		d := store.NewDynamo(client, cfg.Dynamo.TablePrefix)
		log.Info(ctx, "dynamodb client ready", "region", cfg.Dynamo.Region, "table_prefix", cfg.Dynamo.TablePrefix)
		return &backend{
			name:    cfg.Backend,
			store:   d,
			migrate: d.EnsureTables,
			close:   func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
	}
}
