package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

type (
	// Execer executes statements that return no rows. *sql.DB, *sql.Conn and
	// *sql.Tx all satisfy it.
	Execer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	}

	// Querier executes queries. *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
	Querier interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	}

	// Tx is an open transaction. *sql.Tx satisfies it.
	Tx interface {
		Execer
		Querier
		Commit() error
		Rollback() error
	}

	// Client is a connection pool bound to a Dialect.
	Client struct {
		db      *sql.DB
		dialect Dialect
	}
)

var _ Tx = (*sql.Tx)(nil)

// Open connects to the store identified by driver and dsn and verifies the
// connection with a ping.
//
// Example:
//
//	client, err := database.Open(ctx, "postgres", "postgres://app@localhost:5432/app")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
func Open(ctx context.Context, driver, dsn string) (*Client, error) {
	dialect, err := LookupDialect(driver)
	if err != nil {
		return nil, err
	}

	if dialect.Name() == DialectSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", dialect.Name())
	}

	if dialect.Name() == DialectSQLite {
		// One connection per pool; SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", dialect.Name())
	}

	return &Client{db: db, dialect: dialect}, nil
}

// New wraps an existing pool. It is mostly useful in tests where the pool is
// provided by go-sqlmock.
func New(db *sql.DB, dialect Dialect) *Client {
	return &Client{db: db, dialect: dialect}
}

// Begin starts a transaction.
func (c *Client) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return tx, nil
}

// ExecContext implements Execer.
func (c *Client) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext implements Querier.
func (c *Client) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// Dialect returns the dialect the client was opened with.
func (c *Client) Dialect() Dialect {
	return c.dialect
}

// DB exposes the underlying pool.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.db.Close()
}
