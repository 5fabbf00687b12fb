package cmd

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"go.uber.org/fx"
)

var Module = fx.Module("cli",
	fx.Provide(
		newProject,
		fx.Annotate(initCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(newCmd, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(migrate, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(status, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(verify, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(rehash, fx.ResultTags(`group:"commands"`)),
		fx.Annotate(unlock, fx.ResultTags(`group:"commands"`)),
	),
	fx.Invoke(Run),
)

// newProject roots the project at the directory holding the config file.
func newProject(cfg *config.Config) (*project.Project, error) {
	dir, err := filepath.Abs(filepath.Dir(config.Path()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve project directory")
	}

	return project.New(project.ProjectParams{Dir: dir, Config: cfg}), nil
}
