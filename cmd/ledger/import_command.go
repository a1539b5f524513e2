package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/listenupapp/ledger-server/internal/domain"
)

func newImportCommand(cc *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>...",
		Short: "Import sales reports and wait for them to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cc.ledger()
			if err != nil {
				return err
			}
			userID, err := cc.userID(user)
			if err != nil {
				return err
			}

			jobs := make([]*domain.ImportJob, 0, len(args))
			for _, path := range args {
				job, err := importFile(cmd.Context(), ledger, path, userID)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			}

			if cc.jsonOutput {
				return writeJSON(cmd, jobs)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))

			for _, job := range jobs {
				if job.Status == domain.ImportStatusFailed {
					return fmt.Errorf("import %s failed: %s", job.FileName, lastError(job))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner of the imported records (default: configured user)")
	return cmd
}

// importFile uploads the file at path and waits for its job.
func importFile(ctx context.Context, runner importRunner, path, userID string) (*domain.ImportJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	job, err := runner.ProcessImportFileSync(ctx, f, filepath.Base(path), userID)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return job, nil
}

func lastError(job *domain.ImportJob) string {
	if len(job.ErrorLog) == 0 {
		return "unknown error"
	}
	return job.ErrorLog[len(job.ErrorLog)-1]
}
