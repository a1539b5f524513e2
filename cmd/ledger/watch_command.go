package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/ledger-server/internal/currency"
	"github.com/listenupapp/ledger-server/internal/di/providers"
	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/errors"
	"github.com/listenupapp/ledger-server/internal/watcher"
)

// importRunner runs one uploaded file to completion. An unreadable upload comes
// back as a failed job.
type importRunner interface {
	ProcessImportFileSync(ctx context.Context, r io.Reader, fileName, userID string) (*domain.ImportJob, error)
}

// inbox imports workbooks dropped into a directory and files them under
// processed/ or failed/ afterwards.
type inbox struct {
	runner importRunner
	dir    string
	userID string
	logger *slog.Logger
	now    func() time.Time
}

// handle imports the workbook at path. It returns the subdirectory the file was
// moved to, or "" when the import was interrupted and the file left in place.
func (in *inbox) handle(ctx context.Context, path string) (string, error) {
	name := filepath.Base(path)
	log := in.logger.With("file", name, "user_id", in.userID)

	dest := providers.FailedDir
	job, err := importFile(ctx, in.runner, path, in.userID)
	switch {
	case err != nil && ctx.Err() != nil:
		log.Info("Import interrupted, leaving file in inbox")
		return "", nil
	case err != nil:
		log.Error("Import could not run", "error", err)
	case job.Status == domain.ImportStatusCompleted:
		dest = providers.ProcessedDir
		log.Info("Import completed",
			"import_id", job.ID,
			"new_records", job.NewRecords,
			"duplicates", job.DuplicateRecords,
			"errors", job.ErrorRecords,
		)
	default:
		log.Warn("Import failed", "import_id", job.ID, "status", job.Status, "error", lastError(job))
	}

	target, err := in.move(path, dest)
	if err != nil {
		return "", err
	}
	log.Debug("Filed workbook", "path", target)
	return dest, nil
}

// move renames path into the dest subdirectory, adding a timestamp when the
// name is already taken.
func (in *inbox) move(path, dest string) (string, error) {
	dir := filepath.Join(in.dir, dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	name := filepath.Base(path)
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		target = filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, in.now().UTC().Format("20060102T150405.000"), ext))
	}

	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", name, dest, err)
	}
	return target, nil
}

func newWatchCommand(cc *commandContext) *cobra.Command {
	var user string
	var inboxPath string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import workbooks dropped into the inbox until interrupted",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cc.flags.InboxPath = inboxPath
			cc.flags.UserID = user
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			log := cc.logger()

			lock := flock.New(cfg.Storage.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return errors.Conflictf("another ledger daemon is using %s", cfg.Storage.DataPath)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.Warn("Failed to release daemon lock", "error", err)
				}
			}()

			injector, err := cc.container()
			if err != nil {
				return err
			}
			ledger, err := cc.ledger()
			if err != nil {
				return err
			}
			handle, err := do.Invoke[*providers.InboxWatcherHandle](injector)
			if err != nil {
				return err
			}
			rates, err := do.Invoke[*currency.Service](injector)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			go rates.RunRefresher(ctx, currency.USD, cfg.Currency.RefreshInterval)

			in := &inbox{
				runner: ledger,
				dir:    handle.Inbox,
				userID: cfg.Import.DefaultUserID,
				logger: log.Logger,
				now:    time.Now,
			}

			log.Info("Ledger daemon started", "inbox", handle.Inbox, "user_id", in.userID, "lock", cfg.Storage.LockPath())

			// Files that arrived while the daemon was down.
			existing, err := handle.Scan(handle.Inbox)
			if err != nil {
				return err
			}
			for _, event := range existing {
				if ctx.Err() != nil {
					break
				}
				if _, err := in.handle(ctx, event.Path); err != nil {
					log.Error("Failed to file workbook", "file", event.Path, "error", err)
				}
			}

			go func() {
				if err := handle.Start(ctx); err != nil {
					log.Error("Inbox watcher error", "error", err)
				}
			}()

			err = watchLoop(ctx, handle.Events(), handle.Errors(), in)
			log.Info("Shutting down ledger daemon gracefully...")
			return err
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner of imported files (default: configured user)")
	cmd.Flags().StringVar(&inboxPath, "inbox", "", "Inbox directory (default: {data}/inbox)")
	return cmd
}

// watchLoop feeds settled workbooks to the inbox until ctx is done.
func watchLoop(ctx context.Context, events <-chan watcher.Event, errs <-chan error, in *inbox) error {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case event := <-events:
			if _, err := in.handle(ctx, event.Path); err != nil {
				in.logger.Error("Failed to file workbook", "file", event.Path, "error", err)
			}
		case err := <-errs:
			in.logger.Warn("Inbox watcher error", "error", err)
		}
	}
}
