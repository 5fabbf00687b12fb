package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
	"github.com/pseudomuto/changekeeper/pkg/project"
	"github.com/stretchr/testify/require"
)

// ProjectFixture represents a test project backed by a SQLite database in the
// project directory.
type ProjectFixture struct {
	Dir     string
	Config  *config.Config
	Project *project.Project
	t       *testing.T
}

// TestProject creates an isolated temp directory with an initialized
// changekeeper project whose database lives next to the config.
func TestProject(t *testing.T) *ProjectFixture {
	t.Helper()

	tmpDir := t.TempDir()
	proj := project.New(project.ProjectParams{Dir: tmpDir})

	err := proj.Initialize(project.InitOptions{
		Driver: "sqlite",
		DSN:    filepath.Join(tmpDir, "test.db"),
	})
	require.NoError(t, err, "Failed to initialize test project")

	return &ProjectFixture{
		Dir:     tmpDir,
		Config:  proj.Config(),
		Project: proj,
		t:       t,
	}
}

// AddMigration declares a new migration and writes sql as its content.
func (p *ProjectFixture) AddMigration(name, sql string) migrator.Descriptor {
	p.t.Helper()

	d, path, err := p.Project.NewMigration(name)
	require.NoError(p.t, err, "Failed to declare migration %s", name)
	require.NoError(p.t, os.WriteFile(path, []byte(sql), consts.ModeFile), "Failed to write migration %s", name)

	return d
}

// MigrationPath returns the absolute path of a migration's content.
func (p *ProjectFixture) MigrationPath(d migrator.Descriptor) string {
	return filepath.Join(p.Dir, p.Config.ChangelogDir(), filepath.FromSlash(d.Locator))
}

// SumFilePath returns the absolute path of the project's sum file.
func (p *ProjectFixture) SumFilePath() string {
	return filepath.Join(p.Dir, p.Config.SumFilePath())
}
