// Package providers contains dependency injection providers for the ledger server.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/listenupapp/ledger-server/internal/config"
	"github.com/listenupapp/ledger-server/internal/logger"
)

// ProvideConfig returns a provider that loads configuration with the given command-line values.
func ProvideConfig(flags config.Flags) do.Provider[*config.Config] {
	return func(i do.Injector) (*config.Config, error) {
		return config.LoadConfig(flags)
	}
}

// ProvideLogger provides the structured logger. Logs go to stderr so command output stays clean.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Writer:      os.Stderr,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("Configuration loaded",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"config_file", cfg.File,
	)

	return log, nil
}
