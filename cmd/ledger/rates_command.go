package main

import (
	"fmt"
	"strings"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/ledger-server/internal/currency"
)

type rateRow struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Rate   string `json:"rate,omitempty"`
	Source string `json:"source,omitempty"`
	Date   string `json:"date,omitempty"`
	Found  bool   `json:"found"`
}

func newRatesCommand(cc *commandContext) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "rates [CUR...]",
		Short: "Show exchange rates into a target currency",
		Long:  "Resolves each currency the way imports do: cached quote, live source, then the built-in table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			injector, err := cc.container()
			if err != nil {
				return err
			}
			rates, err := do.Invoke[*currency.Service](injector)
			if err != nil {
				return err
			}

			codes := args
			if len(codes) == 0 {
				codes = currency.FallbackCurrencies()
			}
			to := strings.ToUpper(target)

			results := make([]rateRow, 0, len(codes))
			for _, code := range codes {
				from := strings.ToUpper(strings.TrimSpace(code))
				row := rateRow{From: from, To: to}
				if q, ok := rates.Quote(cmd.Context(), from, to); ok {
					row.Rate = q.Rate.String()
					row.Source = q.Source
					row.Date = q.Date
					row.Found = true
				}
				results = append(results, row)
			}

			if cc.jsonOutput {
				return writeJSON(cmd, results)
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.From, r.To, orDash(r.Rate), orDash(r.Source), orDash(r.Date)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"From", "To", "Rate", "Source", "Date"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "to", currency.USD, "Target currency")
	return cmd
}
