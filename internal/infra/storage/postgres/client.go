// Package postgres implements every relational port of the processor with
// gorm on PostgreSQL. The adapters stay dialect-neutral, so the test suite
// runs them unchanged on in-memory sqlite databases.
package postgres

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gabapcia/safewatch/internal/txproc"
)

type client struct {
	db *gorm.DB
}

// NewClient connects to the database and brings the schema up to date.
func NewClient(ctx context.Context, dsn string) (*client, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return nil, err
	}

	return &client{db: db}, nil
}

func (c *client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Transact runs fn against a transactional view of the client. gorm turns a
// nested call into a savepoint, which is exactly the per-call rollback the
// batch coordinator builds on.
func (c *client) Transact(ctx context.Context, fn func(txproc.Storage) error) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&client{db: tx})
	})
}

// Compile-time assertions that the client covers the processor's ports.
var (
	_ txproc.Storage         = (*client)(nil)
	_ txproc.VersionRegistry = (*client)(nil)
)
