package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/urfave/cli/v3"
)

// unlock removes the SQLite lock row left behind by a runner that died while
// holding it. PostgreSQL and MySQL locks belong to a session and disappear
// with it, so there is nothing to release for those drivers.
func unlock(p engineParams) *cli.Command {
	return &cli.Command{
		Name:   "unlock",
		Usage:  "Force release a stale SQLite migration lock",
		Before: requireConfig(p.Config),
		Flags: []cli.Flag{
			dsnFlag,
			driverFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := openStore(ctx, cmd, p.Config)
			if err != nil {
				return err
			}
			defer client.Close()

			if name := client.Dialect().Name(); name != database.DialectSQLite {
				fmt.Fprintf(cmd.Writer, "Nothing to unlock: %s locks are released when their session ends\n", name)
				return nil
			}

			locker := database.NewSQLiteLocker(client.DB(), newLedger(client, p.Config).Table(), p.Config.Ledger.LockTimeout)
			released, err := locker.ForceRelease(ctx)
			if err != nil {
				return err
			}

			if released {
				fmt.Fprintln(cmd.Writer, "Released the migration lock")
			} else {
				fmt.Fprintln(cmd.Writer, "The migration lock is not held")
			}

			return nil
		},
	}
}
