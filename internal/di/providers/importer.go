package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/ledger-server/internal/config"
	"github.com/listenupapp/ledger-server/internal/currency"
	"github.com/listenupapp/ledger-server/internal/importer"
	"github.com/listenupapp/ledger-server/internal/logger"
	"github.com/listenupapp/ledger-server/internal/masterbook"
	"github.com/listenupapp/ledger-server/internal/normalize"
	"github.com/listenupapp/ledger-server/internal/validation"
)

// ProvideValidator provides the shared input validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideNormalizer provides the row normalizer.
func ProvideNormalizer(i do.Injector) (*normalize.Normalizer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	rates := do.MustInvoke[*currency.Service](i)
	validator := do.MustInvoke[*validation.Validator](i)

	return normalize.New(rates, validator, log.Logger), nil
}

// ProvideAggregator provides the master book aggregator.
func ProvideAggregator(i do.Injector) (*masterbook.Aggregator, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	rates := do.MustInvoke[*currency.Service](i)

	return masterbook.New(storeHandle.Store, storeHandle.Store, rates, log.Logger), nil
}

// ProvideImporter provides the import job processor.
func ProvideImporter(i do.Injector) (*importer.Importer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	normalizer := do.MustInvoke[*normalize.Normalizer](i)
	aggregator := do.MustInvoke[*masterbook.Aggregator](i)

	return importer.New(
		storeHandle.Store,
		storeHandle.Store,
		normalizer,
		aggregator,
		importer.Config{ProgressEvery: cfg.Import.ProgressEvery},
		log.Logger,
	), nil
}

// QueueHandle wraps the import queue with shutdown capability.
type QueueHandle struct {
	*importer.Queue
}

// Shutdown implements do.Shutdownable. Running imports get shutdownTimeout to finish.
func (h *QueueHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Queue.Shutdown(ctx)
}

// ProvideQueue provides the per-user import queue.
func ProvideQueue(i do.Injector) (*QueueHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	imp := do.MustInvoke[*importer.Importer](i)

	return &QueueHandle{Queue: importer.NewQueue(imp, log.Logger)}, nil
}
