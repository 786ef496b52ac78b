package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medportal/internal/ledger"
	"medportal/pkg/database"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema version and ledger height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			db, err := database.Connect(cmd.Context(), opts.cfg)
			if err != nil {
				fmt.Fprintf(out, "database: unreachable (%v)\n", err)
			} else {
				defer db.Close()
				version, dirty, err := database.SchemaVersion(db)
				switch {
				case err != nil:
					fmt.Fprintf(out, "database: %v\n", err)
				case dirty:
					fmt.Fprintf(out, "database: schema version %d (dirty)\n", version)
				default:
					fmt.Fprintf(out, "database: schema version %d\n", version)
				}
			}

			chain, err := ledger.Open(opts.ledgerPath, nil)
			if err != nil {
				return err
			}
			defer chain.Close()
			height, err := chain.Height()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ledger: %d blocks at %s\n", height, opts.ledgerPath)
			return nil
		},
	}
}
