package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stakedesk/internal/format"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet and persist the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			session, err := a.wallet.Connect(cmd.Context(), a.cfg.WalletKind)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected %s (%s) on %s\n",
				format.FormatAddress(session.Address),
				session.WalletKind,
				a.network.Name(session.ChainID),
			)
			return nil
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Clear the persisted wallet session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			// restore silently so the provider also shuts down cleanly
			if _, _, err := a.wallet.CheckPreviousConnection(cmd.Context()); err != nil {
				a.logger.Warn("session restore failed during disconnect")
			}
			if err := a.wallet.Disconnect(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, network, and balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			session, err := a.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wallet:   %s (%s)\n", session.Address, session.WalletKind)
			fmt.Fprintf(out, "network:  %s (chain %d)\n", a.network.Name(session.ChainID), session.ChainID)

			printBalances(cmd.Context(), a, out)
			return nil
		},
	}
}

func printBalances(ctx context.Context, a *app, out io.Writer) {
	prov := a.wallet.Provider()
	if prov == nil {
		return
	}
	user := a.userAddress()

	native, err := prov.BalanceAt(ctx, user)
	if err != nil {
		a.logger.Warn("native balance read failed")
	} else {
		session := a.wallet.Session()
		decimals := uint8(18)
		symbol := "ETH"
		if n, ok := a.network.Descriptor(session.ChainID); ok {
			decimals = n.NativeCurrency.Decimals
			symbol = n.NativeCurrency.Symbol
		}
		fmt.Fprintf(out, "native:   %s %s\n", format.FormatAmount(native, decimals, 6), symbol)
	}

	reward, err := a.gateway.RewardToken(ctx)
	if err != nil {
		return
	}
	info, err := a.gateway.TokenInfo(ctx, reward)
	if err != nil {
		return
	}
	balance, err := a.gateway.BalanceOf(ctx, reward, user)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "rewards:  %s %s\n", format.FormatAmount(balance, info.Decimals, 6), info.Symbol)
}
