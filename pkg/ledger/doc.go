// Package ledger persists the record of applied migrations.
//
// Each applied migration gets exactly one row holding its changelog id, the
// locator its content was read from, the SHA-256 fingerprint of that content
// and the time it was applied. Rows are inserted by RecordApplied inside the
// same transaction as the migration's statements, so a row exists if and only
// if the migration committed. Rows are never updated or deleted.
//
// The table defaults to migrations_log and is created on demand by
// EnsureSchema with a dialect specific layout:
//
//	id               surrogate key
//	migration_id     unique changelog id
//	content_locator  path of the applied content
//	applied_at       timestamp, defaults to the current time
//	fingerprint      64 character lowercase hex SHA-256
package ledger
