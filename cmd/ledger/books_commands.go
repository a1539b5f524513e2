package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/errors"
)

func newBooksCommand(cc *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "books",
		Short: "List master books by USD royalties",
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
			books, err := ledger.GetMasterBooks(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if cc.jsonOutput {
				return writeJSON(cmd, books)
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No master books")
				return nil
			}

			rows := make([][]string, 0, len(books))
			for _, b := range books {
				rows = append(rows, []string{
					b.Identifier,
					string(b.Format),
					orDash(b.Title),
					orDash(b.Author),
					i64toa(b.NetUnitsSold),
					i64toa(b.KENPRead),
					formatMoney(b.TotalRoyaltiesUSD),
					orDash(b.LastSaleDate),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Identifier", "Format", "Title", "Author", "Net Units", "KENP", "Royalties (USD)", "Last Sale"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User whose books to list (default: configured user)")
	return cmd
}

func newBookCommand(cc *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "book <asin-or-isbn>",
		Short: "Show one master book with its breakdowns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := cc.ledger()
			if err != nil {
				return err
			}
			userID, err := cc.userID(user)
			if err != nil {
				return err
			}
			book, err := ledger.GetMasterBook(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			if book == nil {
				return errors.NotFoundf("no master book for %s", args[0])
			}
			if cc.jsonOutput {
				return writeJSON(cmd, book)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBook(book))
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner of the book (default: configured user)")
	return cmd
}

func renderBook(b *domain.MasterBook) string {
	identifier := b.Identifier
	if b.Synthetic {
		identifier += " (synthetic)"
	}

	out := renderPairs([][2]string{
		{"Identifier", identifier},
		{"Format", string(b.Format)},
		{"Title", orDash(b.Title)},
		{"Author", orDash(b.Author)},
		{"ISBN", orDash(b.ISBN)},
		{"Sales", orDash(b.FirstSaleDate) + " to " + orDash(b.LastSaleDate)},
		{"Units sold", i64toa(b.UnitsSold)},
		{"Units refunded", i64toa(b.UnitsRefunded)},
		{"Net units", i64toa(b.NetUnitsSold)},
		{"KENP read", i64toa(b.KENPRead)},
		{"Royalties", formatBuckets(b.RoyaltiesByCurrency)},
		{"Royalties (USD)", formatMoney(b.TotalRoyaltiesUSD)},
		{"Book sales", formatBuckets(b.SalesBreakdown.BookSales)},
		{"KENP reads", formatBuckets(b.SalesBreakdown.KENPReads)},
		{"List price", formatMoneyPtr(b.ListPrice) + " " + b.PriceCurrency},
		{"Offer price", formatMoneyPtr(b.OfferPrice) + " " + b.PriceCurrency},
		{"Imports", itoa(len(b.SourceImportIDs))},
	})

	if len(b.Marketplaces) == 0 {
		return out
	}

	rows := make([][]string, 0, len(b.Marketplaces))
	for _, name := range slices.Sorted(maps.Keys(b.Marketplaces)) {
		m := b.Marketplaces[name]
		rows = append(rows, []string{name, i64toa(m.UnitsSold), formatMoney(m.Royalties), orDash(m.Currency)})
	}
	return out + "\n" + renderTable(
		[]string{"Marketplace", "Units", "Royalties", "Currency"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	)
}
