package config

import (
	"os"

	"go.uber.org/fx"
)

var Module = fx.Module("config", fx.Provide(
	// Returns a nil config when the file does not exist so commands that don't
	// need one (init, help, version) still work.
	func() (*Config, error) {
		path := Path()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}

		return LoadConfigFile(path)
	},
))
