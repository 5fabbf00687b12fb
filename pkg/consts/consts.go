package consts

import (
	"os"
	"time"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)
)

const (
	// ConfigFile is the project configuration file name.
	ConfigFile = "changekeeper.yaml"

	// ConfigEnvVar overrides the location of ConfigFile.
	ConfigEnvVar = "CHANGEKEEPER_CONFIG"

	// EnvPrefix prefixes every environment override of the configuration.
	EnvPrefix = "CHANGEKEEPER_"

	// DefaultChangelog is the changelog document, relative to the project root.
	DefaultChangelog = "changelog.yaml"

	// SumFileName is the integrity file written next to the changelog.
	SumFileName = "changelog.sum"

	// MigrationsDir holds migration content, relative to the changelog.
	MigrationsDir = "migrations"

	// DefaultDriver is used when no database driver is configured.
	DefaultDriver = "sqlite"

	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "changekeeper.db"

	// DefaultLockTimeout bounds how long a run waits for another runner.
	DefaultLockTimeout = 30 * time.Second

	// DefaultLogLevel is the minimum level logged.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the log encoder, console or json.
	DefaultLogFormat = "console"
)
