package executor

import (
	"context"
	"io/fs"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/ledger"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/pseudomuto/changekeeper/pkg/executor"

type (
	// DB opens the per-migration transactions. *database.Client satisfies it.
	DB interface {
		Begin(ctx context.Context) (database.Tx, error)
	}

	// Ledger is the subset of *ledger.Ledger the executor depends on.
	Ledger interface {
		EnsureSchema(ctx context.Context) error
		Exists(ctx context.Context) (bool, error)
		LoadAll(ctx context.Context) (*ledger.EntrySet, error)
		RecordApplied(ctx context.Context, tx database.Execer, entry ledger.Entry) error
	}

	// Config contains everything an Executor needs. DB, Ledger, Changelog and
	// FS are required.
	Config struct {
		// DB opens the transaction each migration runs in.
		DB DB

		// Ledger records applied migrations.
		Ledger Ledger

		// Locker serializes runs against the store. Runs are not serialized
		// when nil.
		Locker database.Locker

		// Changelog supplies the ordered migration descriptors.
		Changelog migrator.ChangelogSource

		// FS resolves locators. It is rooted at the changelog's directory.
		FS fs.FS

		// Splitter breaks content into statements. Defaults to NaiveSplitter.
		Splitter migrator.Splitter

		// SumFile, when set, must match the changelog before anything runs.
		SumFile *migrator.SumFile

		// Logger defaults to a no-op logger.
		Logger *zap.Logger

		// Metrics may be nil.
		Metrics *Metrics

		// TracerProvider defaults to the global provider.
		TracerProvider trace.TracerProvider
	}

	// Executor applies the migrations declared in a changelog, in order, each
	// in its own transaction together with its ledger entry.
	//
	// Example usage:
	//
	//	exec, err := executor.New(executor.Config{
	//		DB:        client,
	//		Ledger:    ledger.New(client),
	//		Locker:    client.NewLocker(ledger.DefaultTable, database.DefaultLockTimeout),
	//		Changelog: migrator.FileChangelog{FS: os.DirFS("db"), Path: "changelog.yaml"},
	//		FS:        os.DirFS("db"),
	//		Logger:    logger,
	//	})
	//	if err != nil {
	//		log.Fatal(err)
	//	}
	//
	//	report, err := exec.Run(ctx)
	//	if err != nil {
	//		log.Fatalf("migration %d failed (%s): %v", report.Failure.MigrationID, report.Failure.Reason, err)
	//	}
	Executor struct {
		db        DB
		ledger    Ledger
		locker    database.Locker
		changelog migrator.ChangelogSource
		fsys      fs.FS
		splitter  migrator.Splitter
		sumFile   *migrator.SumFile
		logger    *zap.Logger
		metrics   *Metrics
		tracer    trace.Tracer
	}
)

// New validates cfg and returns an Executor.
func New(cfg Config) (*Executor, error) {
	switch {
	case cfg.DB == nil:
		return nil, errors.New("executor: DB is required")
	case cfg.Ledger == nil:
		return nil, errors.New("executor: Ledger is required")
	case cfg.Changelog == nil:
		return nil, errors.New("executor: Changelog is required")
	case cfg.FS == nil:
		return nil, errors.New("executor: FS is required")
	}

	e := &Executor{
		db:        cfg.DB,
		ledger:    cfg.Ledger,
		locker:    cfg.Locker,
		changelog: cfg.Changelog,
		fsys:      cfg.FS,
		splitter:  cfg.Splitter,
		sumFile:   cfg.SumFile,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}

	if e.splitter == nil {
		e.splitter = migrator.NaiveSplitter{}
	}

	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	e.tracer = tp.Tracer(tracerName)

	return e, nil
}

// Run applies every pending migration in declaration order.
//
// Already applied migrations whose content is unchanged are skipped. The run
// stops at the first problem: unreadable content, drift, a failing statement
// or a ledger failure. Migrations committed before the problem stay committed.
// The returned report is never nil and, on error, its Failure names the
// migration and the reason.
//
// Cancelling ctx stops the run before the next migration starts. A migration
// whose transaction is already open is allowed to finish or roll back.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	report := newReport()
	logger := e.logger.With(zap.String("run_id", report.RunID))

	ctx, span := e.tracer.Start(ctx, "changekeeper.run",
		trace.WithAttributes(attribute.String("changekeeper.run_id", report.RunID)),
	)
	defer span.End()

	logger.Info("starting migration run")

	stopped, err := e.run(ctx, report, logger)
	report.Duration = time.Since(report.StartedAt)

	if err != nil {
		report.fail(stopped, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(report.Failure.Reason))

		fields := []zap.Field{zap.String("reason", string(report.Failure.Reason)), zap.Error(err)}
		if report.Failure.HasMigration {
			fields = append(fields, zap.Int64("migration_id", report.Failure.MigrationID))
		}
		logger.Error("migration run aborted", fields...)
	} else {
		logger.Info("migration run complete",
			zap.Int("committed", report.Count(StatusCommitted)),
			zap.Int("skipped", report.Count(StatusSkipped)),
			zap.Duration("duration", report.Duration),
		)
	}

	span.SetAttributes(
		attribute.Int("changekeeper.committed", report.Count(StatusCommitted)),
		attribute.Int("changekeeper.skipped", report.Count(StatusSkipped)),
	)
	e.metrics.observeRun(report)

	return report, err
}

// run returns the result of the migration it stopped at, if any, alongside the error.
func (e *Executor) run(ctx context.Context, report *Report, logger *zap.Logger) (*Result, error) {
	descriptors, err := e.changelog.Load()
	if err != nil {
		return nil, err
	}
	report.init(descriptors)

	if e.sumFile != nil {
		if err := e.sumFile.Verify(e.fsys, descriptors); err != nil {
			return nil, err
		}
	}

	if e.locker != nil {
		release, err := e.locker.Acquire(ctx)
		if err != nil {
			return nil, &migrator.LedgerError{Op: "lock", Err: err}
		}

		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release migration lock", zap.Error(err))
			}
		}()
	}

	if err := e.ledger.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	applied, err := e.ledger.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, orphan := range applied.Orphans(descriptors) {
		logger.Warn("ledger entry is not declared in the changelog",
			zap.Int64("migration_id", orphan.MigrationID),
			zap.String("locator", orphan.Locator),
		)
	}

	for _, res := range report.Results {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "run cancelled before migration %d", res.ID)
		}

		if err := e.process(ctx, res, applied, logger); err != nil {
			return res, err
		}
	}

	return nil, nil
}

func (e *Executor) process(ctx context.Context, res *Result, applied *ledger.EntrySet, logger *zap.Logger) error {
	ctx, span := e.tracer.Start(ctx, "changekeeper.migration",
		trace.WithAttributes(
			attribute.Int64("changekeeper.migration_id", res.ID),
			attribute.String("changekeeper.locator", res.Locator),
		),
	)
	defer span.End()

	logger = logger.With(zap.Int64("migration_id", res.ID), zap.String("locator", res.Locator))

	err := e.advance(ctx, res, applied, logger)
	span.SetAttributes(attribute.String("changekeeper.status", res.Status.String()))
	if err != nil {
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ReasonOf(err)))
	}

	if res.Status.Terminal() {
		e.metrics.observeMigration(res)
	}

	return err
}

func (e *Executor) advance(ctx context.Context, res *Result, applied *ledger.EntrySet, logger *zap.Logger) error {
	m, err := migrator.LoadMigration(e.fsys, res.Descriptor)
	if err != nil {
		return err
	}
	res.Fingerprint = m.Fingerprint

	if entry, ok := applied.Get(m.ID); ok {
		res.AppliedAt = entry.AppliedAt

		if entry.Fingerprint != m.Fingerprint {
			res.transition(StatusDriftDetected)
			return &migrator.DriftError{
				MigrationID: m.ID,
				Locator:     m.Locator,
				Recorded:    entry.Fingerprint,
				Current:     m.Fingerprint,
			}
		}

		if entry.Locator != m.Locator {
			logger.Warn("applied migration has a new locator",
				zap.String("recorded_locator", entry.Locator),
			)
		}

		res.transition(StatusSkipped)
		logger.Debug("migration already applied")
		return nil
	}

	res.transition(StatusExecuting)
	logger.Info("applying migration")

	start := time.Now()
	err = e.apply(ctx, m, res)
	res.Duration = time.Since(start)

	if err != nil {
		res.transition(StatusFailed)
		return err
	}

	res.transition(StatusCommitted)
	logger.Info("migration committed",
		zap.Int("statements", res.Statements),
		zap.Duration("duration", res.Duration),
	)

	return nil
}

// apply runs the statements and the ledger insert in one transaction. The
// transaction ignores cancellation of ctx so it always ends in a commit or a
// rollback.
func (e *Executor) apply(ctx context.Context, m *migrator.Migration, res *Result) error {
	stmts, err := m.Statements(e.splitter)
	if err != nil {
		return &migrator.ExecutionError{MigrationID: m.ID, Locator: m.Locator, Err: err}
	}

	ctx = context.WithoutCancel(ctx)

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return &migrator.ExecutionError{
			MigrationID: m.ID,
			Locator:     m.Locator,
			Err:         errors.Wrap(err, "failed to begin transaction"),
		}
	}

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return rollback(tx, &migrator.ExecutionError{
				MigrationID: m.ID,
				Locator:     m.Locator,
				Statement:   i + 1,
				SQL:         stmt,
				Err:         err,
			})
		}
		res.Statements++
	}

	appliedAt := time.Now().UTC()
	entry := ledger.Entry{
		MigrationID: m.ID,
		Locator:     m.Locator,
		Fingerprint: m.Fingerprint,
		AppliedAt:   appliedAt,
	}

	if err := e.ledger.RecordApplied(ctx, tx, entry); err != nil {
		return rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return &migrator.ExecutionError{
			MigrationID: m.ID,
			Locator:     m.Locator,
			Err:         errors.Wrap(err, "failed to commit"),
		}
	}

	res.AppliedAt = appliedAt
	return nil
}

func rollback(tx database.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		return errors.WithMessagef(cause, "rollback failed: %v", err)
	}

	return cause
}

// Plan classifies every declared migration against the ledger without
// changing anything: no lock is taken and the ledger table is not created.
// Unlike Run it does not stop at the first problem; problems are reported on
// the individual results, and ledger entries that are no longer declared are
// listed in Orphans.
//
// An error is returned only when the changelog or the ledger cannot be read.
func (e *Executor) Plan(ctx context.Context) (*Report, error) {
	report := newReport()
	ctx, span := e.tracer.Start(ctx, "changekeeper.plan",
		trace.WithAttributes(attribute.String("changekeeper.run_id", report.RunID)),
	)
	defer span.End()

	fail := func(err error) (*Report, error) {
		report.Duration = time.Since(report.StartedAt)
		report.fail(nil, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(report.Failure.Reason))
		return report, err
	}

	descriptors, err := e.changelog.Load()
	if err != nil {
		return fail(err)
	}
	report.init(descriptors)

	applied, err := ledger.NewEntrySet(nil)
	if err != nil {
		return fail(err)
	}

	exists, err := e.ledger.Exists(ctx)
	if err != nil {
		return fail(err)
	}

	if exists {
		if applied, err = e.ledger.LoadAll(ctx); err != nil {
			return fail(err)
		}
	}

	for _, res := range report.Results {
		m, err := migrator.LoadMigration(e.fsys, res.Descriptor)
		if err != nil {
			res.Err = err
			continue
		}
		res.Fingerprint = m.Fingerprint

		entry, ok := applied.Get(m.ID)
		if !ok {
			continue
		}

		res.AppliedAt = entry.AppliedAt
		if entry.Fingerprint != m.Fingerprint {
			res.transition(StatusDriftDetected)
			res.Err = &migrator.DriftError{
				MigrationID: m.ID,
				Locator:     m.Locator,
				Recorded:    entry.Fingerprint,
				Current:     m.Fingerprint,
			}
			continue
		}

		res.transition(StatusSkipped)
	}

	report.Orphans = applied.Orphans(descriptors)
	for _, orphan := range report.Orphans {
		e.logger.Warn("ledger entry is not declared in the changelog",
			zap.Int64("migration_id", orphan.MigrationID),
			zap.String("locator", orphan.Locator),
		)
	}

	if e.sumFile != nil {
		report.SumErr = e.sumFile.Verify(e.fsys, descriptors)
	}

	report.Duration = time.Since(report.StartedAt)
	return report, nil
}
