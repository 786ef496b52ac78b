package main

import (
	"github.com/spf13/cobra"

	"medportal/config"
)

type options struct {
	ledgerPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Medical report portal operations",
		Long:          `portalctl migrates the artifact database and inspects the local ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cfg = config.LoadConfig()
			if opts.ledgerPath == "" {
				opts.ledgerPath = opts.cfg.LedgerPath
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.ledgerPath, "ledger", "", "ledger directory (default LEDGER_PATH)")

	root.AddCommand(newMigrateCmd(opts), newStatusCmd(opts), newLedgerCmd(opts))
	return root
}
