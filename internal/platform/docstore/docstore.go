// Package docstore connects to MongoDB, the document-store backend for
// patients and payments.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const DefaultDatabase = "clinic"

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

// Store owns the client and the selected database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the primary is reachable.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("docstore: MONGO_URL is required")
	}
	cfg = cfg.withDefaults()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return s, nil
}

func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the given indexes per collection. Creating an index
// that already exists with the same keys is a no-op on the server.
func EnsureIndexes(ctx context.Context, db *mongo.Database, indexes map[string][]mongo.IndexModel) error {
	for coll, models := range indexes {
		if len(models) == 0 {
			continue
		}
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
