package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type newParams struct {
	fx.In

	Config  *config.Config
	Project *project.Project
}

// newCmd declares a new migration: it creates an empty migrations/NNNN_name.sql
// and appends its descriptor, with the next free id, to the changelog.
func newCmd(p newParams) *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Declare a new migration",
		ArgsUsage: "NAME",
		Before:    requireConfig(p.Config),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(name) == "" {
				return errors.New("a migration name is required")
			}

			d, path, err := p.Project.NewMigration(name)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "Declared migration %d: %s\n", d.ID, path)
			return nil
		},
	}
}
