package executor

import (
	"fmt"
	"time"

	"github.com/pseudomuto/changekeeper/pkg/migrator"
)

const (
	// StatusPending means the migration has not been looked at yet, or (in a
	// plan) that it would be applied by the next run.
	StatusPending Status = "pending"

	// StatusSkipped means the migration was already applied with identical content.
	StatusSkipped Status = "skipped"

	// StatusExecuting means the migration's transaction is open.
	StatusExecuting Status = "executing"

	// StatusCommitted means the migration and its ledger entry were committed.
	StatusCommitted Status = "committed"

	// StatusFailed means the migration's transaction was rolled back.
	StatusFailed Status = "failed"

	// StatusDriftDetected means the content changed after it was applied.
	StatusDriftDetected Status = "drift_detected"
)

// transitions lists every legal status change. Skipped, Committed, Failed and
// DriftDetected are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusSkipped, StatusExecuting, StatusDriftDetected},
	StatusExecuting: {StatusCommitted, StatusFailed},
}

type (
	// Status is the lifecycle state of a single migration within a run.
	Status string

	// Result describes what happened to one declared migration.
	Result struct {
		migrator.Descriptor

		// Status is the last state the migration reached.
		Status Status

		// Fingerprint of the content read during this run. Empty if the content
		// was never read.
		Fingerprint string

		// Statements is the number of statements executed.
		Statements int

		// AppliedAt is when the migration was recorded in the ledger, either in
		// this run or a previous one.
		AppliedAt time.Time

		// Duration of the migration's transaction.
		Duration time.Duration

		// Err is the failure that stopped this migration, if any.
		Err error
	}
)

// CanTransition reports whether a migration may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}

	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusExecuting
}

func (s Status) String() string {
	return string(s)
}

func (r *Result) transition(to Status) {
	if !CanTransition(r.Status, to) {
		panic(fmt.Sprintf("executor: illegal transition %s -> %s for migration %d", r.Status, to, r.ID))
	}

	r.Status = to
}
