package database

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	// Drivers for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	// DialectSQLite is the name of the SQLite dialect.
	DialectSQLite = "sqlite"

	// DialectPostgres is the name of the PostgreSQL dialect.
	DialectPostgres = "postgres"

	// DialectMySQL is the name of the MySQL dialect.
	DialectMySQL = "mysql"
)

var (
	// SQLite is backed by modernc.org/sqlite.
	SQLite Dialect = sqliteDialect{}

	// Postgres is backed by the pgx stdlib driver.
	Postgres Dialect = postgresDialect{}

	// MySQL is backed by github.com/go-sql-driver/mysql.
	MySQL Dialect = mysqlDialect{}

	dialectAliases = map[string]Dialect{
		"sqlite":     SQLite,
		"sqlite3":    SQLite,
		"postgres":   Postgres,
		"postgresql": Postgres,
		"pgx":        Postgres,
		"mysql":      MySQL,
		"mariadb":    MySQL,
	}
)

type (
	// Dialect captures the differences between the supported stores that the
	// ledger and lockers care about.
	Dialect interface {
		// Name is the canonical dialect name (sqlite, postgres or mysql).
		Name() string

		// DriverName is the database/sql driver the dialect opens connections with.
		DriverName() string

		// Placeholder returns the bind parameter for the n-th (1-based) argument.
		Placeholder(n int) string

		// QuoteIdent quotes an identifier such as a table name.
		QuoteIdent(name string) string

		// VersionQuery returns a query yielding the server version as one string.
		VersionQuery() string
	}

	sqliteDialect   struct{}
	postgresDialect struct{}
	mysqlDialect    struct{}
)

// LookupDialect resolves a dialect by name. Common aliases such as
// "postgresql" and "sqlite3" are accepted.
func LookupDialect(name string) (Dialect, error) {
	d, ok := dialectAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Errorf("unsupported database driver: %q (expected sqlite, postgres or mysql)", name)
	}

	return d, nil
}

func (sqliteDialect) Name() string { return DialectSQLite }
func (sqliteDialect) DriverName() string { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) VersionQuery() string { return "SELECT sqlite_version()" }
func (sqliteDialect) QuoteIdent(n string) string { return quote(n, '"') }

func (postgresDialect) Name() string { return DialectPostgres }
func (postgresDialect) DriverName() string { return "pgx" }
func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (postgresDialect) VersionQuery() string { return "SHOW server_version" }
func (postgresDialect) QuoteIdent(n string) string { return quote(n, '"') }

func (mysqlDialect) Name() string { return DialectMySQL }
func (mysqlDialect) DriverName() string { return "mysql" }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) VersionQuery() string { return "SELECT VERSION()" }
func (mysqlDialect) QuoteIdent(n string) string { return quote(n, '`') }

// quote wraps each dot separated part of name in q, doubling any embedded q.
// A schema qualified name such as public.migrations_log becomes
// "public"."migrations_log".
func quote(name string, q byte) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		escaped := strings.ReplaceAll(part, string(q), string([]byte{q, q}))
		parts[i] = string(q) + escaped + string(q)
	}

	return strings.Join(parts, ".")
}

// sqliteDSN applies the pragmas every SQLite connection in the pool needs:
// a busy timeout so concurrent runners wait instead of failing, and
// immediate transactions so a writer takes the lock when it begins.
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return dsn
	}

	var params []string
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "_txlock") {
		params = append(params, "_txlock=immediate")
	}

	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + strings.Join(params, "&")
}
