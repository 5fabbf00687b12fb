// Package migrator models the migrations declared in a changelog.
//
// A changelog is an ordered YAML (or JSON) sequence of descriptors, each naming
// a unique migration id and the locator of a SQL file relative to the
// changelog's directory:
//
//	- id: 1
//	  file_path: migrations/0001_create_users.sql
//	- id: 2
//	  file_path: migrations/0002_add_email_index.sql
//
// Declaration order is execution order. Ids only identify a migration in the
// ledger; they do not need to be sequential.
//
// The package provides the building blocks used by the executor:
//   - FileChangelog and LoadChangelog parse and validate the changelog
//   - Fingerprint and Fingerprinter compute SHA-256 fingerprints of raw content
//   - LoadMigration reads a migration's content exactly once
//   - NaiveSplitter and LexicalSplitter break content into statements
//   - SumFile pins every fingerprint so edits are caught before a run
//
// Failures are reported with the typed errors in errors.go (ConfigError,
// NotFoundError, DriftError, ExecutionError and LedgerError). Callers inspect
// them with errors.As:
//
//	descriptors, err := migrator.FileChangelog{FS: os.DirFS("db"), Path: "changelog.yaml"}.Load()
//	if err != nil {
//		var cfgErr *migrator.ConfigError
//		if errors.As(err, &cfgErr) {
//			log.Fatalf("fix %s: %v", cfgErr.Path, cfgErr.Err)
//		}
//	}
package migrator
