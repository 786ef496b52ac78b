package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"medportal/internal/ledger"
	"medportal/internal/transport/httpdto"
)

func newLedgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the local artifact ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check every block's hash and link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := ledger.Open(opts.ledgerPath, nil)
			if err != nil {
				return err
			}
			defer chain.Close()

			if err := chain.Verify(cmd.Context()); err != nil {
				return err
			}
			height, err := chain.Height()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger ok: %d blocks\n", height)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <tx>",
		Short: "Print the block registered under a transaction id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := ledger.Open(opts.ledgerPath, nil)
			if err != nil {
				return err
			}
			defer chain.Close()

			block, err := chain.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("tx %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(httpdto.NewLedgerBlockDTO(block))
		},
	})

	return cmd
}
