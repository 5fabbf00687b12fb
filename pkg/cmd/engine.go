package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/pseudomuto/changekeeper/pkg/ledger"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	dsnFlag = &cli.StringFlag{
		Name:  "dsn",
		Usage: "Database connection string (overrides database.dsn)",
		Config: cli.StringConfig{
			TrimSpace: true,
		},
	}

	driverFlag = &cli.StringFlag{
		Name:  "driver",
		Usage: "Database driver: sqlite, postgres or mysql (overrides database.driver)",
		Config: cli.StringConfig{
			TrimSpace: true,
		},
	}
)

// engineParams are the dependencies shared by commands that talk to the store.
type engineParams struct {
	fx.In

	Config  *config.Config
	Project *project.Project
	Logger  *zap.Logger
}

// openStore connects to the configured store, honoring --driver and --dsn.
func openStore(ctx context.Context, cmd *cli.Command, cfg *config.Config) (*database.Client, error) {
	driver, dsn := cfg.Database.Driver, cfg.Database.DSN
	if v := cmd.String("driver"); v != "" {
		driver = v
	}
	if v := cmd.String("dsn"); v != "" {
		dsn = v
	}

	client, err := database.Open(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	return client, nil
}

// newLedger returns the configured ledger stored through client.
func newLedger(client *database.Client, cfg *config.Config) *ledger.Ledger {
	return ledger.New(client, ledger.WithTable(cfg.Ledger.Table))
}

// newExecutor assembles an executor for the project against client. metrics
// may be nil.
func newExecutor(p engineParams, client *database.Client, metrics *executor.Metrics) (*executor.Executor, error) {
	splitter, err := migrator.NewSplitter(p.Config.Splitter)
	if err != nil {
		return nil, err
	}

	src, err := p.Project.Changelog()
	if err != nil {
		return nil, err
	}

	sums, err := p.Project.LoadSumFile()
	if err != nil {
		return nil, err
	}

	led := newLedger(client, p.Config)
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return executor.New(executor.Config{
		DB:        client,
		Ledger:    led,
		Locker:    client.NewLocker(led.Table(), p.Config.Ledger.LockTimeout),
		Changelog: src,
		FS:        src.FS,
		Splitter:  splitter,
		SumFile:   sums,
		Logger:    logger,
		Metrics:   metrics,
	})
}
