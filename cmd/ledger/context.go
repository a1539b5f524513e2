package main

import (
	"encoding/json"
	"sync"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/ledger-server/internal/config"
	"github.com/listenupapp/ledger-server/internal/di"
	"github.com/listenupapp/ledger-server/internal/logger"
	"github.com/listenupapp/ledger-server/internal/service"
)

// commandContext builds the container on first use and shares it between commands.
type commandContext struct {
	flags      config.Flags
	offline    bool
	jsonOutput bool

	once      sync.Once
	injector  *do.RootScope
	bootError error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) container() (*do.RootScope, error) {
	c.once.Do(func() {
		injector := di.NewContainer(c.flags)
		if err := di.Bootstrap(injector); err != nil {
			c.bootError = err
			_ = injector.Shutdown()
			return
		}
		c.injector = injector
	})
	return c.injector, c.bootError
}

func (c *commandContext) config() (*config.Config, error) {
	injector, err := c.container()
	if err != nil {
		return nil, err
	}
	return do.Invoke[*config.Config](injector)
}

func (c *commandContext) logger() *logger.Logger {
	if c.injector == nil {
		return nil
	}
	log, err := do.Invoke[*logger.Logger](c.injector)
	if err != nil {
		return nil
	}
	return log
}

func (c *commandContext) ledger() (*service.LedgerService, error) {
	injector, err := c.container()
	if err != nil {
		return nil, err
	}
	return do.Invoke[*service.LedgerService](injector)
}

// userID returns the --user flag value or the configured default user.
func (c *commandContext) userID(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := c.config()
	if err != nil {
		return "", err
	}
	return cfg.Import.DefaultUserID, nil
}

// shutdown stops every service the container started.
func (c *commandContext) shutdown() {
	if c.injector == nil {
		return
	}
	log := c.logger()
	if err := c.injector.Shutdown(); err != nil && log != nil {
		log.Debug("Shutdown report", "report", err)
	}
	c.injector = nil
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
