package migrator

import (
	"fmt"
)

type (
	// ConfigError reports a changelog (or sum file) that is missing, unreadable,
	// or structurally invalid. No migration is attempted when it is returned.
	ConfigError struct {
		Path string
		Err  error
	}

	// NotFoundError reports migration content that could not be read from its
	// locator.
	NotFoundError struct {
		MigrationID int64
		Locator     string
		Err         error
	}

	// DriftError reports an applied migration whose current content no longer
	// matches the fingerprint recorded in the ledger.
	DriftError struct {
		MigrationID int64
		Locator     string
		Recorded    string
		Current     string
	}

	// ExecutionError reports a statement (or the surrounding transaction) that
	// failed while applying a migration. Statement is 1-based and zero when the
	// failure happened outside of a statement (begin/commit).
	ExecutionError struct {
		MigrationID int64
		Locator     string
		Statement   int
		SQL         string
		Err         error
	}

	// LedgerError reports a failure to read or write the ledger table, or to
	// coordinate access to it. MigrationID is meaningful only when
	// HasMigration is set.
	LedgerError struct {
		Op           string
		MigrationID  int64
		HasMigration bool
		Err          error
	}
)

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid changelog: %v", e.Err)
	}

	return fmt.Sprintf("invalid changelog %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
func (e *ConfigError) Cause() error  { return e.Err }

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("migration %d: content not found at %s: %v", e.MigrationID, e.Locator, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }
func (e *NotFoundError) Cause() error  { return e.Err }

func (e *DriftError) Error() string {
	return fmt.Sprintf(
		"migration %d (%s) has been modified after it was applied: recorded fingerprint %s, current %s",
		e.MigrationID, e.Locator, e.Recorded, e.Current,
	)
}

func (e *ExecutionError) Error() string {
	if e.Statement == 0 {
		return fmt.Sprintf("migration %d (%s) failed: %v", e.MigrationID, e.Locator, e.Err)
	}

	return fmt.Sprintf("migration %d (%s) failed at statement %d: %v", e.MigrationID, e.Locator, e.Statement, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
func (e *ExecutionError) Cause() error  { return e.Err }

func (e *LedgerError) Error() string {
	if e.HasMigration {
		return fmt.Sprintf("ledger: %s (migration %d): %v", e.Op, e.MigrationID, e.Err)
	}

	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }
func (e *LedgerError) Cause() error  { return e.Err }
