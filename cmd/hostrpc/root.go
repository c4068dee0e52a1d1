package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var urlFlag string
	var timeoutFlag string
	var logLevelFlag string

	ctx := newCommandContext(&urlFlag, &timeoutFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "hostrpc",
		Short:         "JSON-RPC client for the host daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "COMMS URL of the daemon (overrides HOSTRPC_URL)")
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", "", "Per-attempt request timeout, e.g. 5s (overrides HOSTRPC_REQUEST_TIMEOUT)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCallCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newVersionCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newPublishCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newJournalCommand(ctx))

	return rootCmd
}
