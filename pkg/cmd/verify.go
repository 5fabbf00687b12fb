package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// verify fails when a run would stop: drifted or unreadable migrations, or a
// stale sum file. Pending migrations are not a failure.
func verify(p engineParams) *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "Check applied migrations for drift and the sum file for staleness",
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

			writeProblems(cmd.Writer, report)

			problems := len(report.Problems())
			if report.SumErr != nil {
				problems++
			}

			if problems > 0 {
				return errors.Errorf("verification failed with %d problem(s)", problems)
			}

			fmt.Fprintf(cmd.Writer, "OK: %d migration(s) verified\n", len(report.Results))
			return nil
		},
	}
}
