package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"stakedesk/internal/format"
)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List multi-sig governance actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}

			gov := a.newGovernanceController()
			views, err := gov.List(cmd.Context(), a.userAddress())
			if err != nil {
				return err
			}
			required, _ := a.store.Get("governance.requiredApprovals").(uint64)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tPROPOSER\tAPPROVALS\tSTATE\tSUMMARY")
			for _, v := range views {
				state := "executable"
				if !v.Readiness.Executable {
					state = string(v.Readiness.Reason)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
					v.Action.ID,
					v.Action.Kind,
					format.FormatAddress(v.Action.Proposer),
					v.Action.Approvals, required,
					state,
					v.Summary,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no governance actions")
			}
			return nil
		},
	}
}

func newExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <action-id>",
		Short: "Execute an approved governance action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid action id %q", args[0])
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}

			gov := a.newGovernanceController()
			start := time.Now()
			action, err := gov.Execute(cmd.Context(), a.userAddress(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "executed action %d (%s) in %s\n",
				action.ID, action.Kind, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
