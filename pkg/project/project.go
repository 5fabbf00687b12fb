package project

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
)

var (
	//go:embed embed/changekeeper.yaml
	defaultConfig string

	//go:embed embed/changelog.yaml
	defaultChangelog []byte

	configTemplate = template.Must(template.New("changekeeper.yaml").Parse(defaultConfig))
)

type (
	// InitOptions contains options for project initialization.
	InitOptions struct {
		// Driver written to the generated config. Defaults to sqlite.
		Driver string

		// DSN written to the generated config. Defaults to changekeeper.db.
		DSN string
	}

	// ProjectParams configures a Project.
	ProjectParams struct {
		// Dir is the project root. Relative paths in the config resolve
		// against it.
		Dir string

		// Config may be nil for projects that have not been initialized.
		Config *config.Config
	}

	// Project is a directory holding a changekeeper.yaml, a changelog and the
	// migration content it declares.
	Project struct {
		root   string
		config *config.Config
	}
)

// New creates a Project rooted at p.Dir.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("changekeeper.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	proj := project.New(project.ProjectParams{Dir: ".", Config: cfg})
//	d, path, err := proj.NewMigration("create users")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("declared migration %d, edit %s\n", d.ID, path)
func New(p ProjectParams) *Project {
	return &Project{root: p.Dir, config: p.Config}
}

// Root returns the project directory.
func (p *Project) Root() string {
	return p.root
}

// Config returns the loaded configuration, which is nil until the project is
// initialized.
func (p *Project) Config() *config.Config {
	return p.config
}

// Initialize creates changekeeper.yaml, the changelog and the migrations
// directory. Existing files are never overwritten, so running it twice is
// safe. The resulting configuration is loaded into the project.
func (p *Project) Initialize(opts InitOptions) error {
	if err := p.ensureDirectory(); err != nil {
		return err
	}

	if opts.Driver == "" {
		opts.Driver = consts.DefaultDriver
	}
	if opts.DSN == "" {
		opts.DSN = consts.DefaultDSN
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, opts); err != nil {
		return errors.Wrap(err, "failed to render config")
	}

	if _, err := config.LoadConfig(bytes.NewReader(buf.Bytes())); err != nil {
		return errors.Wrap(err, "invalid init options")
	}

	configPath := p.path(consts.ConfigFile)
	if err := writeIfMissing(configPath, buf.Bytes()); err != nil {
		return err
	}

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", consts.ConfigFile)
	}

	if err := os.MkdirAll(p.path(cfg.MigrationsDir()), consts.ModeDir); err != nil {
		return errors.Wrapf(err, "failed to create migrations directory")
	}

	if err := writeIfMissing(p.path(cfg.Changelog), defaultChangelog); err != nil {
		return err
	}

	p.config = cfg
	return nil
}

func (p *Project) ensureDirectory() error {
	dir, err := os.Stat(p.root)
	if err != nil {
		return errors.Wrapf(err, "failed to stat dir: %s", p.root)
	}

	if !dir.IsDir() {
		return errors.Errorf("%s is not a directory", p.root)
	}

	return nil
}

func (p *Project) withConfig(fn func(*config.Config) error) error {
	if p.config == nil {
		return errors.Errorf("%s not found in %s", consts.ConfigFile, p.root)
	}

	return fn(p.config)
}

// path resolves a config relative path against the project root.
func (p *Project) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}

	return filepath.Join(p.root, rel)
}

func writeIfMissing(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), consts.ModeDir); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for %s", path)
	}

	return errors.Wrapf(os.WriteFile(path, data, consts.ModeFile), "failed to write file %s", path)
}
