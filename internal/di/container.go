// Package di provides dependency injection configuration for the ledger server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/ledger-server/internal/config"
	"github.com/listenupapp/ledger-server/internal/currency"
	"github.com/listenupapp/ledger-server/internal/di/providers"
	"github.com/listenupapp/ledger-server/internal/importer"
	"github.com/listenupapp/ledger-server/internal/logger"
	"github.com/listenupapp/ledger-server/internal/masterbook"
	"github.com/listenupapp/ledger-server/internal/normalize"
	"github.com/listenupapp/ledger-server/internal/service"
	"github.com/listenupapp/ledger-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(flags config.Flags) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig(flags))
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideRateCache)

	// Currency layer
	do.Provide(injector, providers.ProvideCurrencyService)

	// Import pipeline
	do.Provide(injector, providers.ProvideNormalizer)
	do.Provide(injector, providers.ProvideAggregator)
	do.Provide(injector, providers.ProvideImporter)
	do.Provide(injector, providers.ProvideQueue)

	// Business services
	do.Provide(injector, providers.ProvideLedgerService)

	// Workers
	do.Provide(injector, providers.ProvideInboxWatcher)

	return injector
}

// Bootstrap initializes the core services so configuration and storage errors
// surface before any work starts. The inbox watcher stays lazy.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*validation.Validator](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.RateCacheHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*currency.Service](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*normalize.Normalizer](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*masterbook.Aggregator](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*importer.Importer](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.QueueHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.LedgerService](injector); err != nil {
		return err
	}
	return nil
}
