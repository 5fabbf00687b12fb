package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
)

// DefaultTable is the table the ledger lives in unless WithTable says otherwise.
const DefaultTable = "migrations_log"

// schemas holds the canonical ledger layout per dialect.
var schemas = map[string]string{
	database.DialectSQLite: `CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration_id INTEGER NOT NULL UNIQUE,
		content_locator TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		fingerprint CHAR(64) NOT NULL
	)`,
	database.DialectPostgres: `CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		migration_id BIGINT NOT NULL UNIQUE,
		content_locator VARCHAR(500) NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		fingerprint CHAR(64) NOT NULL
	)`,
	database.DialectMySQL: `CREATE TABLE IF NOT EXISTS %s (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		migration_id BIGINT NOT NULL UNIQUE,
		content_locator VARCHAR(500) NOT NULL,
		applied_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		fingerprint CHAR(64) NOT NULL
	)`,
}

// existsQueries report whether a table exists, one bind parameter for the name.
var existsQueries = map[string]string{
	database.DialectSQLite:   `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
	database.DialectPostgres: `SELECT COUNT(*) FROM pg_catalog.pg_class WHERE oid = to_regclass($1::text)`,
	database.DialectMySQL:    `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
}

type (
	// DB is the store the ledger reads from. *database.Client satisfies it.
	DB interface {
		database.Execer
		database.Querier
		Dialect() database.Dialect
	}

	// Ledger is the durable, append-only record of applied migrations.
	Ledger struct {
		db    DB
		table string
	}

	// Option configures a Ledger.
	Option func(*Ledger)
)

// WithTable stores the ledger in table instead of DefaultTable. The name may
// be schema qualified (e.g. "ops.migrations_log").
func WithTable(table string) Option {
	return func(l *Ledger) {
		if table = strings.TrimSpace(table); table != "" {
			l.table = table
		}
	}
}

// New returns a Ledger backed by db.
func New(db DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Table returns the unquoted table name.
func (l *Ledger) Table() string {
	return l.table
}

// EnsureSchema creates the ledger table if it does not exist yet. It is safe
// to call on every run.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	dialect := l.db.Dialect()

	ddl, ok := schemas[dialect.Name()]
	if !ok {
		return &migrator.LedgerError{Op: "ensure schema", Err: errors.Errorf("unsupported dialect: %s", dialect.Name())}
	}

	if _, err := l.db.ExecContext(ctx, fmt.Sprintf(ddl, dialect.QuoteIdent(l.table))); err != nil {
		return &migrator.LedgerError{Op: "ensure schema", Err: errors.Wrapf(err, "failed to create %s", l.table)}
	}

	return nil
}

// Exists reports whether the ledger table has been created. Read-only
// commands use it to avoid creating the table as a side effect.
func (l *Ledger) Exists(ctx context.Context) (bool, error) {
	query, ok := existsQueries[l.db.Dialect().Name()]
	if !ok {
		return false, &migrator.LedgerError{Op: "exists", Err: errors.Errorf("unsupported dialect: %s", l.db.Dialect().Name())}
	}

	name := l.table
	if l.db.Dialect().Name() == database.DialectPostgres {
		// to_regclass parses its argument as SQL, so it needs the quoted form.
		name = l.db.Dialect().QuoteIdent(l.table)
	}

	rows, err := l.db.QueryContext(ctx, query, name)
	if err != nil {
		return false, &migrator.LedgerError{Op: "exists", Err: err}
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, &migrator.LedgerError{Op: "exists", Err: err}
		}
	}

	if err := rows.Err(); err != nil {
		return false, &migrator.LedgerError{Op: "exists", Err: err}
	}

	return n > 0, nil
}

// LoadAll reads every applied migration in the order it was recorded.
//
// Example usage:
//
//	applied, err := ledger.New(client).LoadAll(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if entry, ok := applied.Get(42); ok {
//		fmt.Printf("42 applied at %s\n", entry.AppliedAt)
//	}
func (l *Ledger) LoadAll(ctx context.Context) (*EntrySet, error) {
	query := "SELECT id, migration_id, content_locator, fingerprint, applied_at FROM " +
		l.db.Dialect().QuoteIdent(l.table) + " ORDER BY id"

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &migrator.LedgerError{Op: "load", Err: errors.Wrap(err, "failed to query ledger")}
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			entry     Entry
			appliedAt any
		)

		if err := rows.Scan(&entry.ID, &entry.MigrationID, &entry.Locator, &entry.Fingerprint, &appliedAt); err != nil {
			return nil, &migrator.LedgerError{Op: "load", Err: errors.Wrap(err, "failed to scan ledger row")}
		}

		entry.Fingerprint = strings.TrimSpace(entry.Fingerprint)
		if entry.AppliedAt, err = parseTimestamp(appliedAt); err != nil {
			return nil, &migrator.LedgerError{Op: "load", MigrationID: entry.MigrationID, HasMigration: true, Err: err}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, &migrator.LedgerError{Op: "load", Err: errors.Wrap(err, "failed to iterate ledger rows")}
	}

	set, err := NewEntrySet(entries)
	if err != nil {
		return nil, &migrator.LedgerError{Op: "load", Err: err}
	}

	return set, nil
}

// RecordApplied appends an entry using tx, which must be the transaction the
// migration's statements ran in. The entry becomes visible only when the
// caller commits. AppliedAt defaults to the current time.
func (l *Ledger) RecordApplied(ctx context.Context, tx database.Execer, entry Entry) error {
	if len(entry.Fingerprint) != migrator.FingerprintLength {
		return &migrator.LedgerError{
			Op:           "record",
			MigrationID:  entry.MigrationID,
			HasMigration: true,
			Err:          errors.Errorf("invalid fingerprint %q", entry.Fingerprint),
		}
	}

	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now()
	}

	dialect := l.db.Dialect()
	query := "INSERT INTO " + dialect.QuoteIdent(l.table) +
		" (migration_id, content_locator, fingerprint, applied_at) VALUES (" +
		dialect.Placeholder(1) + ", " +
		dialect.Placeholder(2) + ", " +
		dialect.Placeholder(3) + ", " +
		dialect.Placeholder(4) + ")"

	if _, err := tx.ExecContext(ctx, query, entry.MigrationID, entry.Locator, entry.Fingerprint, entry.AppliedAt.UTC()); err != nil {
		return &migrator.LedgerError{Op: "record", MigrationID: entry.MigrationID, HasMigration: true, Err: err}
	}

	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// parseTimestamp normalizes the representations drivers use for timestamp
// columns: time.Time (pgx, modernc), and text (MySQL without parseTime,
// SQLite rows written by other tools).
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimestamp(string(t))
	case string:
		s := strings.TrimSpace(t)
		// time.Time.String() appends a monotonic clock reading.
		if idx := strings.Index(s, " m="); idx != -1 {
			s = s[:idx]
		}

		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, errors.Errorf("unrecognized timestamp %q", t)
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case nil:
		return time.Time{}, errors.New("applied_at is null")
	default:
		return time.Time{}, errors.Errorf("unsupported timestamp type %T", v)
	}
}

var _ DB = (*database.Client)(nil)
