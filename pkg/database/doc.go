// Package database connects changekeeper to the relational stores it
// migrates.
//
// Three dialects are supported, each backed by a database/sql driver:
//   - sqlite (modernc.org/sqlite, pure Go)
//   - postgres (github.com/jackc/pgx/v5/stdlib)
//   - mysql (github.com/go-sql-driver/mysql)
//
// Client wraps a *sql.DB together with its Dialect. The narrow Execer,
// Querier and Tx interfaces are what the ledger and executor depend on, so
// a *sql.Tx can be handed to them directly and tests can substitute
// go-sqlmock.
//
// Runs against one store are serialized with a Locker obtained from
// Client.NewLocker: a session advisory lock on PostgreSQL, GET_LOCK on MySQL,
// and a single row lock table on SQLite.
//
// Example usage:
//
//	client, err := database.Open(ctx, "sqlite", "file:app.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	release, err := client.NewLocker("migrations_log", 30*time.Second).Acquire(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer release(context.Background())
//
// MySQL commits DDL statements implicitly, so a migration containing DDL
// cannot be rolled back there even though it runs inside a transaction.
package database
