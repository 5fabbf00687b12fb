package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/urfave/cli/v3"
)

func status(p engineParams) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show migration status",
		Description: `Display every declared migration and its state against the ledger.

The status command never writes to the database: it takes no lock and does not
create the ledger table. A migration is listed as

- pending: declared but not applied
- skipped: applied and unchanged
- drift_detected: applied but its content changed since
- missing: its content cannot be read

Applied migrations that are no longer declared are reported as warnings.`,
		Before: requireConfig(p.Config),
		Flags: []cli.Flag{
			dsnFlag,
			driverFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report, err := plan(ctx, cmd, p)
			if err != nil {
				return err
			}

			if err := writeResults(cmd.Writer, report); err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "\n%d applied, %d pending\n",
				report.Count(executor.StatusSkipped)+report.Count(executor.StatusDriftDetected),
				runnable(report),
			)
			writeProblems(cmd.Writer, report)

			return nil
		},
	}
}

// plan evaluates the project against the store without changing either.
func plan(ctx context.Context, cmd *cli.Command, p engineParams) (*executor.Report, error) {
	client, err := openStore(ctx, cmd, p.Config)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	exec, err := newExecutor(p, client, nil)
	if err != nil {
		return nil, err
	}

	report, err := exec.Plan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to plan migrations")
	}

	return report, nil
}
