package database

import (
	"context"
	"database/sql"
	"hash/fnv"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// DefaultLockTimeout bounds how long Acquire waits for another runner.
	DefaultLockTimeout = 30 * time.Second

	lockPollInterval = 100 * time.Millisecond
	lockNamePrefix   = "changekeeper:"
)

// ErrLockTimeout is returned when the lock could not be acquired before the
// timeout elapsed.
var ErrLockTimeout = errors.New("timed out waiting for the migration lock")

type (
	// Locker serializes migration runs against one store. Acquire blocks until
	// the lock is held, the timeout elapses, or ctx is cancelled.
	Locker interface {
		Acquire(ctx context.Context) (Release, error)
	}

	// Release gives up a lock obtained from Acquire.
	Release func(ctx context.Context) error

	// PostgresLocker uses a session level advisory lock held on a dedicated
	// connection for as long as the lock is held.
	PostgresLocker struct {
		db      *sql.DB
		key     int64
		timeout time.Duration
	}

	// MySQLLocker uses GET_LOCK/RELEASE_LOCK on a dedicated connection.
	MySQLLocker struct {
		db      *sql.DB
		name    string
		timeout time.Duration
	}

	// SQLiteLocker emulates an advisory lock with a single row table. The row
	// names the holder so only the runner that took the lock releases it. A row
	// left behind by a crashed runner can be removed with ForceRelease.
	SQLiteLocker struct {
		db      *sql.DB
		table   string
		timeout time.Duration
	}
)

// NewLocker returns the locker for the client's dialect. name identifies the
// lock (typically the ledger table) so that independent ledgers in one store
// do not block each other.
func (c *Client) NewLocker(name string, timeout time.Duration) Locker {
	switch c.dialect.Name() {
	case DialectPostgres:
		return NewPostgresLocker(c.db, name, timeout)
	case DialectMySQL:
		return NewMySQLLocker(c.db, name, timeout)
	default:
		return NewSQLiteLocker(c.db, name, timeout)
	}
}

// NewPostgresLocker creates a PostgresLocker. The advisory lock key is an
// FNV-1a hash of name.
func NewPostgresLocker(db *sql.DB, name string, timeout time.Duration) *PostgresLocker {
	return &PostgresLocker{db: db, key: AdvisoryLockKey(name), timeout: orDefault(timeout)}
}

// Acquire implements Locker.
func (l *PostgresLocker) Acquire(ctx context.Context) (Release, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reserve connection for advisory lock")
	}

	err = poll(ctx, l.timeout, func(ctx context.Context) (bool, error) {
		var ok bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
			return false, errors.Wrapf(err, "pg_try_advisory_lock(%d)", l.key)
		}
		return ok, nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return func(ctx context.Context) error {
		defer conn.Close()

		var released bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released); err != nil {
			return errors.Wrapf(err, "pg_advisory_unlock(%d)", l.key)
		}
		if !released {
			return errors.Errorf("advisory lock %d was not held", l.key)
		}
		return nil
	}, nil
}

// NewMySQLLocker creates a MySQLLocker.
func NewMySQLLocker(db *sql.DB, name string, timeout time.Duration) *MySQLLocker {
	return &MySQLLocker{db: db, name: lockNamePrefix + name, timeout: orDefault(timeout)}
}

// Acquire implements Locker.
func (l *MySQLLocker) Acquire(ctx context.Context) (Release, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to reserve connection for named lock")
	}

	seconds := int(math.Ceil(l.timeout.Seconds()))

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", l.name, seconds).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "GET_LOCK(%s)", l.name)
	}

	switch {
	case !got.Valid:
		_ = conn.Close()
		return nil, errors.Errorf("GET_LOCK(%s) failed", l.name)
	case got.Int64 == 0:
		_ = conn.Close()
		return nil, errors.Wrapf(ErrLockTimeout, "after %s", l.timeout)
	}

	return func(ctx context.Context) error {
		defer conn.Close()

		var released sql.NullInt64
		if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", l.name).Scan(&released); err != nil {
			return errors.Wrapf(err, "RELEASE_LOCK(%s)", l.name)
		}
		if !released.Valid || released.Int64 != 1 {
			return errors.Errorf("named lock %s was not held", l.name)
		}
		return nil
	}, nil
}

// NewSQLiteLocker creates a SQLiteLocker backed by the table <name>_lock.
func NewSQLiteLocker(db *sql.DB, name string, timeout time.Duration) *SQLiteLocker {
	return &SQLiteLocker{db: db, table: SQLite.QuoteIdent(name + "_lock"), timeout: orDefault(timeout)}
}

// Acquire implements Locker.
func (l *SQLiteLocker) Acquire(ctx context.Context) (Release, error) {
	if err := l.ensureTable(ctx); err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	err := poll(ctx, l.timeout, func(ctx context.Context) (bool, error) {
		res, err := l.db.ExecContext(
			ctx,
			"INSERT OR IGNORE INTO "+l.table+" (id, holder, acquired_at) VALUES (1, ?, ?)",
			holder,
			time.Now().UTC(),
		)
		if err != nil {
			return false, errors.Wrap(err, "failed to insert lock row")
		}

		n, err := res.RowsAffected()
		if err != nil {
			return false, errors.Wrap(err, "failed to insert lock row")
		}
		return n == 1, nil
	})
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		res, err := l.db.ExecContext(ctx, "DELETE FROM "+l.table+" WHERE id = 1 AND holder = ?", holder)
		if err != nil {
			return errors.Wrap(err, "failed to delete lock row")
		}

		if n, _ := res.RowsAffected(); n != 1 {
			return errors.Errorf("lock held by %s was already released", holder)
		}
		return nil
	}, nil
}

// ForceRelease removes the lock row regardless of who holds it. It reports
// whether a row was removed.
func (l *SQLiteLocker) ForceRelease(ctx context.Context) (bool, error) {
	if err := l.ensureTable(ctx); err != nil {
		return false, err
	}

	res, err := l.db.ExecContext(ctx, "DELETE FROM "+l.table)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete lock row")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to delete lock row")
	}

	return n > 0, nil
}

func (l *SQLiteLocker) ensureTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+l.table+` (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		holder TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL
	)`)

	return errors.Wrap(err, "failed to create lock table")
}

// AdvisoryLockKey maps a lock name onto the int64 key space used by
// PostgreSQL advisory locks.
func AdvisoryLockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(lockNamePrefix + name))
	return int64(h.Sum64() & math.MaxInt64)
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultLockTimeout
	}
	return timeout
}

// poll calls try until it reports success, returns an error, or timeout
// elapses. Cancellation of ctx is reported as-is; an elapsed timeout is
// reported as ErrLockTimeout.
func poll(ctx context.Context, timeout time.Duration, try func(context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := try(pollCtx)
		if err != nil {
			if ctx.Err() == nil && pollCtx.Err() != nil {
				return errors.Wrapf(ErrLockTimeout, "after %s", timeout)
			}
			return err
		}

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "gave up waiting for the migration lock")
		case <-pollCtx.Done():
			return errors.Wrapf(ErrLockTimeout, "after %s", timeout)
		case <-ticker.C:
		}
	}
}
