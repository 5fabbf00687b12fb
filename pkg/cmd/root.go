package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type (
	Params struct {
		fx.In

		Args       []string
		Commands   []*cli.Command `group:"commands"`
		Ctx        context.Context
		Lifecycle  fx.Lifecycle
		Logger     *zap.Logger
		Shutdowner fx.Shutdowner
		Version    *Version
	}

	Version struct {
		Version   string
		Commit    string
		Timestamp string
	}
)

// Run creates the changekeeper CLI application and schedules it to run once
// the fx application starts. The process exit code reflects the outcome of
// the command: 0 on success, 1 on any error.
//
// The project is located through the config file, changekeeper.yaml in the
// working directory unless CHANGEKEEPER_CONFIG points elsewhere. Commands that
// need a project fail with a helpful error when the file is missing.
//
// Example usage:
//
//	# Apply pending migrations using ./changekeeper.yaml
//	changekeeper migrate
//
//	# Check a deployment's ledger without changing anything
//	CHANGEKEEPER_CONFIG=deploy/changekeeper.yaml changekeeper verify --dsn "$DATABASE_URL"
func Run(p Params) {
	cli.VersionPrinter = func(cmd *cli.Command) {
		fmt.Fprintln(cmd.Writer, "Version:", p.Version.Version)
		fmt.Fprintln(cmd.Writer, "Commit:", p.Version.Commit)
		fmt.Fprintln(cmd.Writer, "Date:", p.Version.Timestamp)
	}

	app := &cli.Command{
		Name:  "changekeeper",
		Usage: "Ordered, fingerprinted SQL migrations",
		Description: `changekeeper applies the SQL migrations declared in a changelog, in order,
each in its own transaction together with its ledger entry. Applied migrations
are fingerprinted so later edits are detected instead of silently ignored.`,
		Version:  p.Version.Version,
		Commands: p.Commands,
	}

	// Commands run outside the start hook so long migrations and lock waits
	// are not bound by fx's start timeout. Stopping the app cancels the
	// command's context and waits for it to return.
	ctx, cancel := context.WithCancel(p.Ctx)
	done := make(chan struct{})

	p.Lifecycle.Append(fx.StartStopHook(
		func() {
			go func() {
				defer close(done)

				if err := app.Run(ctx, p.Args); err != nil {
					p.Logger.Error("Error running command", zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
					return
				}

				_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
			}()
		},
		func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return errors.Wrap(stopCtx.Err(), "command did not stop in time")
			}
		},
	))
}

func requireConfig(cfg *config.Config) func(context.Context, *cli.Command) (context.Context, error) {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if cfg == nil {
			return ctx, errors.Errorf("%s not found; run 'changekeeper init' first", consts.ConfigFile)
		}

		return ctx, nil
	}
}
