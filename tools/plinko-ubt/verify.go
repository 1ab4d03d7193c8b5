package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"plinko-ubt/internal/config"
	"plinko-ubt/internal/plinkodb"
)

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Check a converted database directory for consistency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := plinkodb.Verify(args[0], plinkodb.VerifyOptions{
				CheckDuplicates: a.cfg.CheckDuplicates,
				Logger:          a.logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d storage slots, %d accounts (%s, format %s)\n",
				rep.Metadata.NumStorageSlots, rep.Accounts, rep.Metadata.Chain, rep.Metadata.FormatVersion)
			return nil
		},
	}
	cmd.Flags().Bool(config.KeyCheckDuplicates, false, "also reject repeated (address, slot) keys; holds all keys in memory")
	return cmd
}
