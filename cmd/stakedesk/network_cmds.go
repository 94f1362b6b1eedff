package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Network permission and switching operations",
	}

	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Switch the wallet to a configured chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, _ := cmd.Flags().GetInt64("to")
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if chainID == 0 {
				chainID = a.cfg.DefaultChainID
			}
			if _, err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}
			if err := a.network.SwitchTo(cmd.Context(), chainID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", a.network.Name(chainID))
			return nil
		},
	}
	switchCmd.Flags().Int64("to", 0, "target chain id")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a configured chain with the wallet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, _ := cmd.Flags().GetInt64("to")
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if chainID == 0 {
				chainID = a.cfg.DefaultChainID
			}
			if _, err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}
			if err := a.network.AddChain(cmd.Context(), chainID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", a.network.Name(chainID))
			return nil
		},
	}
	addCmd.Flags().Int64("to", 0, "target chain id")

	permissionCmd := &cobra.Command{
		Use:   "permission",
		Short: "Check account permission and chain match",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, _ := cmd.Flags().GetInt64("to")
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if chainID == 0 {
				chainID = a.cfg.DefaultChainID
			}
			if _, err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}
			ok, err := a.network.HasPermission(cmd.Context(), chainID)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "granted on %s\n", a.network.Name(chainID))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "not granted on %s\n", a.network.Name(chainID))
			}
			return nil
		},
	}
	permissionCmd.Flags().Int64("to", 0, "target chain id")

	cmd.AddCommand(switchCmd, addCmd, permissionCmd)
	return cmd
}
