package cmd

import (
	"context"
	"fmt"

	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/urfave/cli/v3"
)

// initCmd creates a CLI command that scaffolds a changekeeper project in the
// project directory: changekeeper.yaml, db/changelog.yaml and db/migrations/.
// Existing files are left untouched, so running it again is safe.
//
// Example usage:
//
//	changekeeper init
//	changekeeper init --driver postgres --dsn "postgres://app@localhost:5432/app?sslmode=disable"
func initCmd(p *project.Project) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a changekeeper project",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Database driver written to the config: sqlite, postgres or mysql",
				Value: "sqlite",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:  "dsn",
				Usage: "Database connection string written to the config",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			err := p.Initialize(project.InitOptions{
				Driver: cmd.String("driver"),
				DSN:    cmd.String("dsn"),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Writer, "Initialized changekeeper project in %s\n", p.Root())
			return nil
		},
	}
}
