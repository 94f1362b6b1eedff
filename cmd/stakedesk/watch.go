package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"stakedesk/internal/format"
	"stakedesk/internal/router"
	"stakedesk/internal/staking"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mount a live view and refresh until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			route, _ := cmd.Flags().GetString("route")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.ensureSession(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := router.New(a.store, a.wallet, a.gateway, a.logger)

			if err := r.Register(router.Route{Pattern: "/", Title: "Overview", RequiresAuth: true},
				func() router.View { return &homeView{app: a, out: out} }); err != nil {
				return err
			}
			if err := r.Register(router.Route{Pattern: "/pair/:address", Title: "Pair", RequiresAuth: true},
				func() router.View { return &pairView{app: a, out: out} }); err != nil {
				return err
			}
			if err := r.Register(router.Route{Pattern: "/admin", Title: "Admin", RequiresAuth: true, RequiresAdmin: true},
				func() router.View { return &adminView{app: a, out: out} }); err != nil {
				return err
			}

			if err := r.Navigate(ctx, route); err != nil {
				return err
			}
			if denied, _ := a.store.Get("router.denied").(bool); denied {
				reason, _ := a.store.Get("router.deniedReason").(string)
				fmt.Fprintf(out, "access denied: %s\n", reason)
				return nil
			}

			<-ctx.Done()
			fmt.Fprintln(out, "shutting down")
			return nil
		},
	}
	cmd.Flags().String("route", "/", "view to mount (/, /pair/<lp-token>, /admin)")
	return cmd
}

// homeView renders the overview and rerenders on panel changes.
type homeView struct {
	app    *app
	out    io.Writer
	ctl    *staking.Controller
	cancel func()
}

func (v *homeView) Mount(ctx context.Context, _ map[string]string) error {
	session := v.app.wallet.Session()
	fmt.Fprintf(v.out, "== %s on %s ==\n",
		format.FormatAddress(session.Address),
		v.app.network.Name(session.ChainID),
	)

	active, err := v.app.gateway.GetActivePairs(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Fprintln(v.out, "no active pairs")
		return nil
	}
	return mountPairPanel(ctx, v.app, v.out, active[0], &v.ctl, &v.cancel)
}

func (v *homeView) Unmount() {
	unmountPairPanel(v.ctl, v.cancel)
}

// pairView renders one pair's panel, selected by the :address param.
type pairView struct {
	app    *app
	out    io.Writer
	ctl    *staking.Controller
	cancel func()
}

func (v *pairView) Mount(ctx context.Context, params map[string]string) error {
	return mountPairPanel(ctx, v.app, v.out, common.HexToAddress(params["address"]), &v.ctl, &v.cancel)
}

func (v *pairView) Unmount() {
	unmountPairPanel(v.ctl, v.cancel)
}

func mountPairPanel(ctx context.Context, a *app, out io.Writer, lpToken common.Address, ctl **staking.Controller, cancel *func()) error {
	c := a.newStakingController()
	if err := c.Mount(ctx, a.userAddress(), lpToken); err != nil {
		return err
	}
	*ctl = c

	render := func(string, any) { renderPanel(a, out) }
	remove := a.store.Subscribe("staking.panel", render)
	*cancel = remove

	renderPanel(a, out)
	return nil
}

func unmountPairPanel(ctl *staking.Controller, cancel func()) {
	if cancel != nil {
		cancel()
	}
	if ctl != nil {
		ctl.Unmount()
	}
}

func renderPanel(a *app, out io.Writer) {
	name, _ := a.store.Get("staking.panel.pairName").(string)
	decimals := uint8(18)
	if lp, ok := a.store.Get("staking.panel.pair").(string); ok && lp != "" {
		if info, err := a.gateway.TokenInfo(context.Background(), common.HexToAddress(lp)); err == nil {
			decimals = info.Decimals
		}
	}

	balance := amountAt(a, "staking.panel.balance", decimals)
	staked := amountAt(a, "staking.panel.staked", decimals)
	pending := amountAt(a, "staking.panel.pendingRewards", decimals)
	refreshed, _ := a.store.Get("staking.panel.lastRefresh").(int64)

	fmt.Fprintf(out, "[%s] balance %s  staked %s  pending %s  (refreshed %s)\n",
		name, balance, staked, pending, format.TimeAgo(refreshed))
}

func amountAt(a *app, path string, decimals uint8) string {
	raw, _ := a.store.Get(path).(*big.Int)
	return format.FormatAmount(raw, decimals, 6)
}

// adminView lists governance actions and re-lists on an interval.
type adminView struct {
	app  *app
	out  io.Writer
	stop chan struct{}
}

func (v *adminView) Mount(ctx context.Context, _ map[string]string) error {
	v.stop = make(chan struct{})
	if err := v.render(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(v.app.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-v.stop:
				return
			case <-ticker.C:
			}
			renderCtx, cancel := context.WithTimeout(context.Background(), v.app.cfg.RefreshInterval)
			if err := v.render(renderCtx); err != nil {
				v.app.logger.Warn("admin refresh failed")
			}
			cancel()
		}
	}()
	return nil
}

func (v *adminView) Unmount() {
	if v.stop != nil {
		close(v.stop)
		v.stop = nil
	}
}

func (v *adminView) render(ctx context.Context) error {
	gov := v.app.newGovernanceController()
	views, err := gov.List(ctx, v.app.userAddress())
	if err != nil {
		return err
	}
	required, _ := v.app.store.Get("governance.requiredApprovals").(uint64)

	fmt.Fprintf(v.out, "== governance (%d actions) ==\n", len(views))
	for _, view := range views {
		state := "executable"
		if !view.Readiness.Executable {
			state = string(view.Readiness.Reason)
		}
		fmt.Fprintf(v.out, "#%d %s  %d/%d  %s  %s\n",
			view.Action.ID, view.Action.Kind, view.Action.Approvals, required, state, view.Summary)
	}
	return nil
}
