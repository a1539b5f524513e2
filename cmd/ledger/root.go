package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(cc *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledger",
		Short:         "Publishing sales ledger",
		Long:          "Imports publisher sales reports and aggregates them into per-book master records.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("offline") {
				offline := cc.offline
				cc.flags.Offline = &offline
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cc.flags.ConfigFile, "config", "c", "", "Configuration file path")
	flags.StringVar(&cc.flags.EnvFile, "env-file", ".env", "Path to .env file")
	flags.StringVar(&cc.flags.Environment, "env", "", "Environment (development, staging, production)")
	flags.StringVar(&cc.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&cc.flags.DataPath, "data", "", "Data directory (default: ~/Ledger)")
	flags.StringVar(&cc.flags.BaseURL, "rates-url", "", "Exchange rate API base URL")
	flags.BoolVar(&cc.offline, "offline", false, "Use cached and fallback exchange rates only")
	flags.BoolVar(&cc.jsonOutput, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newImportCommand(cc))
	rootCmd.AddCommand(newJobsCommand(cc))
	rootCmd.AddCommand(newJobCommand(cc))
	rootCmd.AddCommand(newRecordsCommand(cc))
	rootCmd.AddCommand(newStaleCommand(cc))
	rootCmd.AddCommand(newBooksCommand(cc))
	rootCmd.AddCommand(newBookCommand(cc))
	rootCmd.AddCommand(newRatesCommand(cc))
	rootCmd.AddCommand(newWatchCommand(cc))

	return rootCmd
}
