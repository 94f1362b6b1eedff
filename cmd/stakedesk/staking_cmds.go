package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"stakedesk/internal/format"
	"stakedesk/internal/staking"
)

func newPairsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "List registered LP pairs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}

			pairs, err := a.gateway.GetPairs(cmd.Context())
			if err != nil {
				return err
			}
			totalWeight, err := a.gateway.TotalWeight(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PAIR\tPLATFORM\tWEIGHT\tSHARE\tACTIVE\tADDRESS")
			for _, p := range pairs {
				share := 0.0
				if totalWeight.Sign() > 0 {
					share = float64(p.Weight) / float64(totalWeight.Uint64()) * 100
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\n",
					p.Name, p.Platform, p.Weight,
					format.FormatPercent(share, 1),
					p.IsActive,
					format.FormatAddress(p.LPToken),
				)
			}
			return w.Flush()
		},
	}
}

func stakingFlags(cmd *cobra.Command) {
	cmd.Flags().String("pair", "", "LP token address")
	cmd.Flags().String("amount", "", "token amount, e.g. 12.5")
	cmd.Flags().Float64("percent", 0, "percent of the available balance, 0-100")
	_ = cmd.MarkFlagRequired("pair")
}

// mountPanel wires a staking controller to the selected pair and applies
// the amount or percent input exactly as the panel would.
func mountPanel(cmd *cobra.Command, a *app, tab string) (*staking.Controller, error) {
	pairFlag, _ := cmd.Flags().GetString("pair")
	amount, _ := cmd.Flags().GetString("amount")
	percent, _ := cmd.Flags().GetFloat64("percent")

	if _, err := a.ensureSession(cmd.Context()); err != nil {
		return nil, err
	}

	ctl := a.newStakingController()
	if err := ctl.Mount(cmd.Context(), a.userAddress(), common.HexToAddress(pairFlag)); err != nil {
		return nil, err
	}
	ctl.SetTab(tab)

	switch {
	case amount != "":
		ctl.SetAmount(amount)
	case percent > 0:
		ctl.SetPercent(percent)
	case tab != staking.TabClaim:
		ctl.Unmount()
		return nil, fmt.Errorf("either --amount or --percent is required")
	}
	return ctl, nil
}

func newStakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake LP tokens into a pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctl, err := mountPanel(cmd, a, staking.TabStake)
			if err != nil {
				return err
			}
			defer ctl.Unmount()

			if err := ctl.Stake(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "staked")
			return nil
		},
	}
	stakingFlags(cmd)
	return cmd
}

func newUnstakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unstake",
		Short: "Withdraw staked LP tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctl, err := mountPanel(cmd, a, staking.TabUnstake)
			if err != nil {
				return err
			}
			defer ctl.Unmount()

			if err := ctl.Unstake(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "unstaked")
			return nil
		},
	}
	stakingFlags(cmd)
	return cmd
}

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim pending rewards for a pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctl, err := mountPanel(cmd, a, staking.TabClaim)
			if err != nil {
				return err
			}
			defer ctl.Unmount()

			if err := ctl.Claim(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rewards claimed")
			return nil
		},
	}
	cmd.Flags().String("pair", "", "LP token address")
	_ = cmd.MarkFlagRequired("pair")
	return cmd
}
