package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/consts"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/ledger"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type (
	// Database identifies the store migrations are applied to.
	Database struct {
		// Driver is one of sqlite, postgres or mysql (aliases accepted).
		Driver string `yaml:"driver" env:"DRIVER"`

		// DSN is passed to the driver unchanged, except that SQLite DSNs get a
		// busy timeout when they do not set one.
		DSN string `yaml:"dsn" env:"DSN"`
	}

	// Ledger configures the ledger table and the run lock.
	Ledger struct {
		// Table holds the ledger, optionally schema qualified.
		Table string `yaml:"table" env:"TABLE"`

		// LockTimeout bounds how long a run waits for a concurrent runner.
		LockTimeout time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT"`
	}

	// Log configures the process logger.
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	}

	// Config represents a changekeeper project configuration.
	Config struct {
		Database Database `yaml:"database" envPrefix:"DATABASE_"`

		// Changelog is the path of the changelog document. Locators inside it
		// are relative to its directory.
		Changelog string `yaml:"changelog" env:"CHANGELOG"`

		// SumFile is the path of the integrity file. Defaults to changelog.sum
		// next to the changelog.
		SumFile string `yaml:"sum_file,omitempty" env:"SUM_FILE"`

		// Splitter selects how migration content is split into statements:
		// naive or lexical.
		Splitter string `yaml:"splitter" env:"SPLITTER"`

		Ledger Ledger `yaml:"ledger" envPrefix:"LEDGER_"`
		Log    Log    `yaml:"log" envPrefix:"LOG_"`
	}
)

// Default returns the configuration used when a value is not set.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig parses a configuration document from r, applies CHANGEKEEPER_*
// environment overrides and fills in defaults.
//
// Example:
//
//	cfg, err := config.LoadConfig(strings.NewReader(`
//	database:
//	  driver: postgres
//	  dsn: postgres://app@localhost:5432/app
//	changelog: db/changelog.yaml
//	`))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println(cfg.Ledger.Table) // migrations_log
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: consts.EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "failed to apply environment overrides")
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadConfigFile loads a configuration from the specified file path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return LoadConfig(f)
}

// Path returns the configuration file location, honoring CHANGEKEEPER_CONFIG.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(consts.ConfigEnvVar)); p != "" {
		return p
	}

	return consts.ConfigFile
}

// Validate checks the values that can be checked without touching the store.
func (c *Config) Validate() error {
	if _, err := database.LookupDialect(c.Database.Driver); err != nil {
		return errors.Wrap(err, "invalid database.driver")
	}

	if _, err := migrator.NewSplitter(c.Splitter); err != nil {
		return errors.Wrap(err, "invalid splitter")
	}

	if c.Ledger.LockTimeout < 0 {
		return errors.Errorf("invalid ledger.lock_timeout: %s", c.Ledger.LockTimeout)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "invalid log.level")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("invalid log.format: %q (expected console or json)", c.Log.Format)
	}

	return nil
}

// ChangelogDir is the directory locators are resolved against.
func (c *Config) ChangelogDir() string {
	return filepath.Dir(c.Changelog)
}

// SumFilePath returns the configured sum file or changelog.sum next to the
// changelog.
func (c *Config) SumFilePath() string {
	if c.SumFile != "" {
		return c.SumFile
	}

	return filepath.Join(c.ChangelogDir(), consts.SumFileName)
}

// MigrationsDir is where new migration files are created.
func (c *Config) MigrationsDir() string {
	return filepath.Join(c.ChangelogDir(), consts.MigrationsDir)
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = consts.DefaultDriver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = consts.DefaultDSN
	}
	if c.Changelog == "" {
		c.Changelog = consts.DefaultChangelog
	}
	if c.Splitter == "" {
		c.Splitter = migrator.SplitterNaive
	}
	if c.Ledger.Table == "" {
		c.Ledger.Table = ledger.DefaultTable
	}
	if c.Ledger.LockTimeout == 0 {
		c.Ledger.LockTimeout = consts.DefaultLockTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = consts.DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = consts.DefaultLogFormat
	}
}
