package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type rehashParams struct {
	fx.In

	Config  *config.Config
	Project *project.Project
}

// rehash creates a CLI command for regenerating the sum file.
//
// The command fingerprints every migration declared in the changelog and
// writes changelog.sum next to it. Once the sum file exists, migrate refuses
// to run when the changelog or any migration content no longer matches it,
// which catches edits before they reach a database.
//
// Example usage:
//
//	# Regenerate the sum file after declaring a migration
//	changekeeper rehash
func rehash(p rehashParams) *cli.Command {
	return &cli.Command{
		Name:   "rehash",
		Usage:  "Regenerate the sum file for all migrations",
		Before: requireConfig(p.Config),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sums, err := p.Project.Rehash()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "Successfully rehashed %d migration(s) and updated sum file\n", sums.Len())
			return nil
		},
	}
}
