package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/importer"
)

func newJobsCommand(cc *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List import jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cc.ledger()
			if err != nil {
				return err
			}
			userID, err := cc.userID(user)
			if err != nil {
				return err
			}
			jobs, err := ledger.ListImports(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if cc.jsonOutput {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No imports")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User whose imports to list (default: configured user)")
	return cmd
}

func renderJobs(jobs []*domain.ImportJob) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.FileName,
			string(job.Dialect),
			string(job.Status),
			itoa(job.Progress) + "%",
			itoa(job.NewRecords),
			itoa(job.DuplicateRecords),
			itoa(job.ErrorRecords),
			formatTime(job.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "File", "Dialect", "Status", "Progress", "New", "Duplicates", "Errors", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func newJobCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <import-id>",
		Short: "Show one import job with its error log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cc.ledger()
			if err != nil {
				return err
			}
			job, err := ledger.GetImport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cc.jsonOutput {
				return writeJSON(cmd, job)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderPairs([][2]string{
				{"ID", job.ID},
				{"User", job.UserID},
				{"File", job.FileName},
				{"Dialect", string(job.Dialect)},
				{"Status", string(job.Status)},
				{"Progress", fmt.Sprintf("%d%% (%d/%d rows)", job.Progress, job.ProcessedRecords, job.TotalRecords)},
				{"New records", itoa(job.NewRecords)},
				{"Duplicates", itoa(job.DuplicateRecords)},
				{"Errors", itoa(job.ErrorRecords)},
				{"Aggregation skipped", yesNo(job.AggregationSkipped)},
				{"Created", formatTime(job.CreatedAt)},
				{"Started", formatTimePtr(job.StartedAt)},
				{"Completed", formatTimePtr(job.CompletedAt)},
			}))

			if len(job.Sheets) > 0 {
				rows := make([][]string, 0, len(job.Sheets))
				for _, name := range slices.Sorted(maps.Keys(job.Sheets)) {
					s := job.Sheets[name]
					rows = append(rows, []string{
						name, string(s.Kind), itoa(s.Rows), itoa(s.Kept), itoa(s.Filtered), itoa(s.Dropped), itoa(s.Failed),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Sheet", "Kind", "Rows", "Kept", "Filtered", "Dropped", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
			}

			for _, line := range job.ErrorLog {
				fmt.Fprintln(out, "  "+line)
			}
			if job.ErrorLogOverflow > 0 {
				fmt.Fprintf(out, "  ... %d more\n", job.ErrorLogOverflow)
			}
			return nil
		},
	}
}

func newRecordsCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "records <import-id>",
		Short: "List the sales records an import stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cc.ledger()
			if err != nil {
				return err
			}
			records, err := ledger.GetImportRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cc.jsonOutput {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.SheetName,
					itoa(rec.RowIndex),
					identifierOf(rec),
					orDash(rec.Title),
					rec.Marketplace,
					orDash(rec.TransactionType),
					rec.RoyaltyDate,
					i64toa(rec.NetUnitsSold),
					formatMoney(rec.Royalty) + " " + rec.Currency,
					formatMoney(rec.USD.Royalty),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Sheet", "Row", "Identifier", "Title", "Marketplace", "Type", "Date", "Net Units", "Royalty", "USD"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newStaleCommand(cc *commandContext) *cobra.Command {
	var olderThan time.Duration
	var fail bool

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List imports that stopped making progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			injector, err := cc.container()
			if err != nil {
				return err
			}
			imp, err := do.Invoke[*importer.Importer](injector)
			if err != nil {
				return err
			}

			if olderThan <= 0 {
				olderThan = cfg.Import.StaleAfter
			}

			var jobs []*domain.ImportJob
			if fail {
				jobs, err = imp.FailStale(cmd.Context(), olderThan)
			} else {
				jobs, err = imp.StaleJobs(cmd.Context(), olderThan)
			}
			if err != nil {
				return err
			}

			if cc.jsonOutput {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stale imports")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
			if fail {
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d import(s) as failed\n", len(jobs))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum time without progress (default: configured threshold)")
	cmd.Flags().BoolVar(&fail, "fail", false, "Mark the stale imports as failed")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
