package providers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/ledger-server/internal/config"
	"github.com/listenupapp/ledger-server/internal/logger"
	"github.com/listenupapp/ledger-server/internal/watcher"
)

// Inbox subdirectories for handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// InboxWatcherHandle wraps the inbox watcher with shutdown capability.
type InboxWatcherHandle struct {
	*watcher.Watcher
	Inbox string
}

// Shutdown implements do.Shutdownable.
func (h *InboxWatcherHandle) Shutdown() error {
	return h.Stop()
}

// ProvideInboxWatcher provides the inbox watcher. The caller starts it and reads its events.
func ProvideInboxWatcher(i do.Injector) (*InboxWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	inbox := cfg.Import.InboxPath
	for _, dir := range []string{inbox, filepath.Join(inbox, ProcessedDir), filepath.Join(inbox, FailedDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	w, err := watcher.New(log.Logger, watcher.Options{SettleDelay: cfg.Import.SettleDelay})
	if err != nil {
		return nil, err
	}
	if err := w.Watch(inbox); err != nil {
		_ = w.Stop()
		return nil, err
	}

	log.Info("Watching inbox", "path", inbox)

	return &InboxWatcherHandle{Watcher: w, Inbox: inbox}, nil
}
