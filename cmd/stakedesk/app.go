package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakedesk/internal/config"
	"stakedesk/internal/contract"
	"stakedesk/internal/governance"
	"stakedesk/internal/model"
	"stakedesk/internal/network"
	"stakedesk/internal/provider"
	"stakedesk/internal/staking"
	"stakedesk/internal/storage"
	"stakedesk/internal/storage/postgres"
	"stakedesk/internal/store"
	"stakedesk/internal/wallet"
)

// app wires the full stack for one CLI invocation.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *store.Store
	backend storage.Backend
	pg      *postgres.Store
	wallet  *wallet.Manager
	network *network.Controller
	gateway *contract.Gateway
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("staking contract address is required")
	}
	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("at least one network must be configured")
	}

	a := &app{cfg: cfg, logger: logger, store: store.New(logger)}

	if cfg.PostgresDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.pg = pg
		a.backend = pg
	} else {
		a.backend = storage.NewFileBackend(cfg.StateDir)
	}

	factory := func(ctx context.Context, kind string) (provider.Provider, error) {
		switch kind {
		case model.WalletKindKeystore:
			return provider.NewLocal(ctx, provider.LocalConfig{
				KeystoreDir: cfg.KeystoreDir,
				Password:    cfg.KeystorePassword,
				ChainID:     cfg.DefaultChainID,
				Networks:    cfg.Networks,
			}, logger)
		case model.WalletKindWalletConnect:
			return provider.NewBridge(ctx, provider.BridgeConfig{
				URL:         cfg.BridgeURL,
				ReadTimeout: cfg.ReadTimeout,
			}, logger)
		default:
			return nil, fmt.Errorf("unknown wallet kind %q", kind)
		}
	}

	a.wallet = wallet.NewManager(a.store, a.backend, factory, logger, wallet.Options{
		ConnectTimeout: cfg.ConnectTimeout,
	})
	a.network = network.NewController(a.wallet.Provider, cfg.Networks, a.store, logger)

	devAdmins := make([]common.Address, 0, len(cfg.DevAdmins))
	for _, s := range cfg.DevAdmins {
		devAdmins = append(devAdmins, common.HexToAddress(s))
	}
	a.gateway = contract.NewGateway(common.HexToAddress(cfg.ContractAddress), logger, contract.Options{
		Development: cfg.Development,
		DevAdmins:   devAdmins,
	})

	// keep the gateway bound to whatever session the wallet manager holds
	rebind := func(any) {
		session := a.wallet.Session()
		if !session.Connected() {
			a.gateway.Rebind(nil, common.Address{})
			return
		}
		a.gateway.Rebind(a.wallet.Provider(), common.HexToAddress(session.Address))
	}
	a.wallet.Subscribe(wallet.EventConnected, rebind)
	a.wallet.Subscribe(wallet.EventDisconnected, rebind)
	a.wallet.Subscribe(wallet.EventAccountChanged, rebind)

	return a, nil
}

func (a *app) close() {
	if a.pg != nil {
		a.pg.Close()
	}
	_ = a.logger.Sync()
}

// ensureSession restores the persisted session without prompting, or runs
// a fresh connect with the configured wallet kind.
func (a *app) ensureSession(ctx context.Context) (model.Session, error) {
	session, restored, err := a.wallet.CheckPreviousConnection(ctx)
	if err != nil {
		a.logger.Warn("session restore failed", zap.Error(err))
	}
	if restored {
		return session, nil
	}
	return a.wallet.Connect(ctx, a.cfg.WalletKind)
}

func (a *app) userAddress() common.Address {
	return common.HexToAddress(a.wallet.Session().Address)
}

func (a *app) newStakingController() *staking.Controller {
	return staking.NewController(a.store, a.gateway, a.logger, staking.Options{
		RefreshInterval: a.cfg.RefreshInterval,
	})
}

func (a *app) newGovernanceController() *governance.Controller {
	return governance.NewController(a.store, a.gateway, a.logger, governance.Options{})
}
