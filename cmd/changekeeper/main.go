package main

import (
	"context"
	"os"

	"github.com/pseudomuto/changekeeper/pkg/cmd"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/logging"
	"go.uber.org/fx"
)

// NB: These are set by GoReleaser during a build.
var (
	version string
	commit  string
	date    string
)

func main() {
	fx.New(
		config.Module,
		logging.Module,
		cmd.Module,
		fx.Supply(
			os.Args,
			fx.Annotate(context.Background(), fx.As(new(context.Context))),
			&cmd.Version{
				Version:   version,
				Commit:    commit,
				Timestamp: date,
			},
		),
		fx.WithLogger(logging.FxLogger),
	).Run()
}
