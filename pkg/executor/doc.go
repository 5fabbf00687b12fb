// Package executor applies the migrations declared in a changelog to a
// relational store.
//
// Each run takes the store's migration lock, makes sure the ledger table
// exists, and then walks the changelog in declaration order. For every
// migration it reads the content once, fingerprints it, and compares the
// fingerprint with the ledger:
//
//   - already applied with the same fingerprint: skipped
//   - already applied with a different fingerprint: drift, the run stops
//   - not applied: its statements and its ledger entry are executed in a
//     single transaction that is committed or rolled back as a whole
//
// The first failure stops the run. Migrations committed before it stay
// committed, and the Report names the migration that failed and why.
//
// # Usage Example
//
//	client, err := database.Open(ctx, "postgres", dsn)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	exec, err := executor.New(executor.Config{
//		DB:        client,
//		Ledger:    ledger.New(client),
//		Locker:    client.NewLocker(ledger.DefaultTable, database.DefaultLockTimeout),
//		Changelog: migrator.FileChangelog{FS: os.DirFS("db"), Path: "changelog.yaml"},
//		FS:        os.DirFS("db"),
//		Metrics:   executor.NewMetrics(prometheus.DefaultRegisterer),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := exec.Run(ctx)
//	for _, res := range report.Results {
//		fmt.Printf("%d %s %s\n", res.ID, res.Locator, res.Status)
//	}
//
// Plan performs the same classification without a lock and without writing,
// which is what status and verify style commands need.
//
// # Transactions and DDL
//
// PostgreSQL and SQLite run DDL inside transactions, so a failing migration
// leaves no trace. MySQL commits implicitly on most DDL statements; a
// migration that mixes DDL with a later failing statement can leave the DDL
// applied while its ledger entry is rolled back.
package executor
