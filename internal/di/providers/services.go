package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/ledger-server/internal/logger"
	"github.com/listenupapp/ledger-server/internal/service"
	"github.com/listenupapp/ledger-server/internal/validation"
)

// ProvideLedgerService provides the outward ledger API.
func ProvideLedgerService(i do.Injector) (*service.LedgerService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	queueHandle := do.MustInvoke[*QueueHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)

	return service.NewLedgerService(storeHandle.Store, queueHandle.Queue, validator, log.Logger), nil
}
