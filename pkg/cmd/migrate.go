package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const pushJob = "changekeeper"

func migrate(p engineParams) *cli.Command {
	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"apply", "up"},
		Usage:   "Apply pending migrations",
		Description: `Apply every pending migration declared in the changelog, in declaration order.

Each migration runs in its own transaction together with its ledger entry, so a
migration is either fully applied and recorded or not applied at all. Applied
migrations are skipped when their content is unchanged. The run stops at the
first problem:

- content that cannot be read
- an applied migration whose content changed (drift)
- a failing statement
- a ledger failure

Migrations committed before the problem stay committed. Concurrent runs against
the same database are serialized with a database level lock.`,
		Before: requireConfig(p.Config),
		Flags: []cli.Flag{
			dsnFlag,
			driverFlag,
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be executed without applying changes",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "pushgateway",
				Usage: "Prometheus Pushgateway URL to push run metrics to",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runMigrate(ctx, cmd, p)
		},
	}
}

func runMigrate(ctx context.Context, cmd *cli.Command, p engineParams) error {
	client, err := openStore(ctx, cmd, p.Config)
	if err != nil {
		return err
	}
	defer client.Close()

	metrics := executor.NewMetrics(nil)
	exec, err := newExecutor(p, client, metrics)
	if err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		return runDryRun(ctx, cmd, exec)
	}

	report, runErr := exec.Run(ctx)
	if err := writeResults(cmd.Writer, report); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "\nApplied %d migration(s), skipped %d in %s\n",
		report.Count(executor.StatusCommitted),
		report.Count(executor.StatusSkipped),
		report.Duration,
	)

	if url := cmd.String("pushgateway"); url != "" {
		if err := pushMetrics(ctx, url, metrics); err != nil {
			p.Logger.Warn("Failed to push metrics", zap.String("url", url), zap.Error(err))
		}
	}

	if runErr != nil {
		if !report.Failure.HasMigration {
			return errors.Wrapf(runErr, "migration run aborted (%s)", report.Failure.Reason)
		}

		return errors.Wrapf(runErr, "migration run aborted at migration %d (%s)",
			report.Failure.MigrationID,
			report.Failure.Reason,
		)
	}

	return nil
}

func runDryRun(ctx context.Context, cmd *cli.Command, exec *executor.Executor) error {
	report, err := exec.Plan(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to plan migrations")
	}

	fmt.Fprintln(cmd.Writer, "Dry run: showing migrations that would be executed")
	fmt.Fprintln(cmd.Writer)

	if err := writeResults(cmd.Writer, report); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "\n%d migration(s) would be applied\n", runnable(report))
	writeProblems(cmd.Writer, report)

	return nil
}

func pushMetrics(ctx context.Context, url string, metrics *executor.Metrics) error {
	pusher := push.New(url, pushJob)
	for _, c := range metrics.Collectors() {
		pusher = pusher.Collector(c)
	}

	return errors.Wrapf(pusher.PushContext(ctx), "failed to push metrics to %s", url)
}
