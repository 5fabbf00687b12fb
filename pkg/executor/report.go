package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/ledger"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
)

const (
	// ReasonConfig means the changelog or sum file could not be used.
	ReasonConfig Reason = "config"

	// ReasonNotFound means declared migration content could not be read.
	ReasonNotFound Reason = "not_found"

	// ReasonDrift means applied content was modified.
	ReasonDrift Reason = "drift"

	// ReasonExecutionFailure means a statement or its transaction failed.
	ReasonExecutionFailure Reason = "execution_failure"

	// ReasonLedger means the ledger or the store lock could not be used.
	ReasonLedger Reason = "ledger"

	// ReasonCancelled means the caller's context ended the run.
	ReasonCancelled Reason = "cancelled"

	// ReasonUnknown covers errors outside the taxonomy.
	ReasonUnknown Reason = "unknown"
)

type (
	// Reason classifies why a run stopped.
	Reason string

	// Report summarizes a run or a plan.
	Report struct {
		// RunID uniquely identifies the run in logs and traces.
		RunID string

		StartedAt time.Time
		Duration  time.Duration

		// Results has one entry per declared migration, in declaration order.
		// Migrations after an abort stay pending.
		Results []*Result

		// Orphans are ledger entries whose id is no longer declared. Only
		// populated by Plan.
		Orphans []*ledger.Entry

		// SumErr is the sum file verification failure, if any. Only populated
		// by Plan.
		SumErr error

		// Failure is set when a run was aborted.
		Failure *Failure
	}

	// Failure identifies the migration and reason that aborted a run.
	Failure struct {
		// MigrationID is meaningful only when HasMigration is set. Failures
		// such as an invalid changelog are not tied to a migration. For a
		// cancelled run it is the first migration that was not started.
		MigrationID  int64
		HasMigration bool
		Reason       Reason
		Err          error
	}
)

func newReport() *Report {
	return &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
}

func (r *Report) init(descriptors []migrator.Descriptor) {
	r.Results = make([]*Result, 0, len(descriptors))
	for _, d := range descriptors {
		r.Results = append(r.Results, &Result{Descriptor: d, Status: StatusPending})
	}
}

// fail records err as the reason the run stopped. stopped is the migration
// being evaluated when it happened, or nil.
func (r *Report) fail(stopped *Result, err error) {
	f := &Failure{Reason: ReasonOf(err), Err: err}
	if id, ok := migrationIDOf(err); ok {
		f.MigrationID, f.HasMigration = id, true
	} else if stopped != nil {
		f.MigrationID, f.HasMigration = stopped.ID, true
	}

	r.Failure = f
}

// Succeeded reports whether the run finished without aborting.
func (r *Report) Succeeded() bool {
	return r.Failure == nil
}

// Count returns the number of results in status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}

	return n
}

// Problems returns the results that carry an error, in declaration order.
func (r *Report) Problems() []*Result {
	var problems []*Result
	for _, res := range r.Results {
		if res.Err != nil {
			problems = append(problems, res)
		}
	}

	return problems
}

// Result returns the result for a migration id.
func (r *Report) Result(migrationID int64) (*Result, bool) {
	for _, res := range r.Results {
		if res.ID == migrationID {
			return res, true
		}
	}

	return nil, false
}

// ReasonOf classifies err using the error taxonomy.
func ReasonOf(err error) Reason {
	var (
		cfgErr    *migrator.ConfigError
		nfErr     *migrator.NotFoundError
		driftErr  *migrator.DriftError
		execErr   *migrator.ExecutionError
		ledgerErr *migrator.LedgerError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.As(err, &cfgErr):
		return ReasonConfig
	case errors.As(err, &nfErr):
		return ReasonNotFound
	case errors.As(err, &driftErr):
		return ReasonDrift
	case errors.As(err, &execErr):
		return ReasonExecutionFailure
	case errors.As(err, &ledgerErr):
		return ReasonLedger
	default:
		return ReasonUnknown
	}
}

func migrationIDOf(err error) (int64, bool) {
	var (
		nfErr     *migrator.NotFoundError
		driftErr  *migrator.DriftError
		execErr   *migrator.ExecutionError
		ledgerErr *migrator.LedgerError
	)

	switch {
	case errors.As(err, &nfErr):
		return nfErr.MigrationID, true
	case errors.As(err, &driftErr):
		return driftErr.MigrationID, true
	case errors.As(err, &execErr):
		return execErr.MigrationID, true
	case errors.As(err, &ledgerErr):
		return ledgerErr.MigrationID, ledgerErr.HasMigration
	default:
		return 0, false
	}
}
