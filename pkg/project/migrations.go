package project

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/config"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// ChangelogFS returns the filesystem locators resolve against: the directory
// holding the changelog.
func (p *Project) ChangelogFS() (fs.FS, error) {
	var fsys fs.FS
	err := p.withConfig(func(cfg *config.Config) error {
		fsys = os.DirFS(p.path(cfg.ChangelogDir()))
		return nil
	})

	return fsys, err
}

// Changelog returns the project's changelog source.
func (p *Project) Changelog() (migrator.FileChangelog, error) {
	var src migrator.FileChangelog
	err := p.withConfig(func(cfg *config.Config) error {
		fsys, err := p.ChangelogFS()
		if err != nil {
			return err
		}

		src = migrator.FileChangelog{FS: fsys, Path: filepath.Base(cfg.Changelog)}
		return nil
	})

	return src, err
}

// NewMigration declares a new migration named name. It creates an empty
// migrations/NNNN_name.sql next to the changelog and appends a descriptor
// using the next free id. It returns the descriptor and the file to edit.
func (p *Project) NewMigration(name string) (migrator.Descriptor, string, error) {
	var (
		d    migrator.Descriptor
		file string
	)

	err := p.withConfig(func(cfg *config.Config) error {
		slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
		if slug == "" {
			return errors.Errorf("invalid migration name: %q", name)
		}

		src, err := p.Changelog()
		if err != nil {
			return err
		}

		descriptors, err := src.Load()
		if err != nil {
			return err
		}

		d.ID = migrator.NextID(descriptors)
		d.Locator = path.Join(consts.MigrationsDir, fmt.Sprintf("%04d_%s.sql", d.ID, slug))
		file = p.path(filepath.Join(cfg.ChangelogDir(), filepath.FromSlash(d.Locator)))

		if _, err := os.Stat(file); err == nil {
			return errors.Errorf("migration file already exists: %s", file)
		}

		if err := os.MkdirAll(p.path(cfg.MigrationsDir()), consts.ModeDir); err != nil {
			return errors.Wrap(err, "failed to create migrations directory")
		}

		if err := os.WriteFile(file, nil, consts.ModeFile); err != nil {
			return errors.Wrapf(err, "failed to create migration file: %s", file)
		}

		return migrator.AppendDescriptor(p.path(cfg.Changelog), d)
	})

	return d, file, err
}

// LoadSumFile reads the project's sum file. It returns nil without an error
// when the project has none.
func (p *Project) LoadSumFile() (*migrator.SumFile, error) {
	var sums *migrator.SumFile
	err := p.withConfig(func(cfg *config.Config) error {
		sumPath := p.path(cfg.SumFilePath())

		data, err := os.ReadFile(sumPath)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "failed to open sum file: %s", sumPath)
		}

		if sums, err = migrator.LoadSumFile(bytes.NewReader(data)); err != nil {
			return errors.Wrapf(err, "failed to load sum file: %s", sumPath)
		}

		return nil
	})

	return sums, err
}

// Rehash fingerprints every declared migration and rewrites the sum file.
func (p *Project) Rehash() (*migrator.SumFile, error) {
	var sums *migrator.SumFile
	err := p.withConfig(func(cfg *config.Config) error {
		src, err := p.Changelog()
		if err != nil {
			return err
		}

		descriptors, err := src.Load()
		if err != nil {
			return err
		}

		if sums, err = migrator.BuildSumFile(src.FS, descriptors); err != nil {
			return err
		}

		var buf bytes.Buffer
		if _, err := sums.WriteTo(&buf); err != nil {
			return errors.Wrap(err, "failed to render sum file")
		}

		sumPath := p.path(cfg.SumFilePath())
		return errors.Wrapf(os.WriteFile(sumPath, buf.Bytes(), consts.ModeFile), "failed to create sum file: %s", sumPath)
	})

	return sums, err
}
