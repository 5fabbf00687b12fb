package logging

import (
	"github.com/pseudomuto/changekeeper/pkg/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logging",
	fx.Provide(func(cfg *config.Config, lc fx.Lifecycle) (*zap.Logger, error) {
		if cfg == nil {
			cfg = config.Default()
		}

		log, err := New(cfg.Log)
		if err != nil {
			return nil, err
		}

		lc.Append(fx.StopHook(func() { _ = log.Sync() }))
		return log, nil
	}),
)
