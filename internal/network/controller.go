package network

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stakedesk/internal/model"
	"stakedesk/internal/provider"
	"stakedesk/internal/store"
)

// Controller handles network permission checks and user-visible chain
// switching. It never switches silently: every change goes through a
// wallet request the user can reject.
type Controller struct {
	providerFn func() provider.Provider
	networks   map[int64]model.NetworkDescriptor
	store      *store.Store
	logger     *zap.Logger
}

func NewController(providerFn func() provider.Provider, networks []model.NetworkDescriptor, st *store.Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[int64]model.NetworkDescriptor, len(networks))
	for _, n := range networks {
		byID[n.ChainID] = n
	}
	return &Controller{providerFn: providerFn, networks: byID, store: st, logger: logger}
}

// Name returns the configured network name, or a generic label for chains
// the configuration does not know.
func (c *Controller) Name(chainID int64) string {
	if n, ok := c.networks[chainID]; ok {
		return n.Name
	}
	return fmt.Sprintf("Chain %d", chainID)
}

// Descriptor looks up the configured descriptor for chainID.
func (c *Controller) Descriptor(chainID int64) (model.NetworkDescriptor, bool) {
	n, ok := c.networks[chainID]
	return n, ok
}

// Matches reports the synchronous chain check: wallet currently on expected.
func (c *Controller) Matches(ctx context.Context, expected int64) (bool, error) {
	prov := c.providerFn()
	if prov == nil {
		return false, fmt.Errorf("no wallet connected")
	}
	current, err := prov.ChainID(ctx)
	if err != nil {
		return false, err
	}
	return current == expected, nil
}

// HasPermission reports whether the wallet granted account access AND is on
// the expected chain. Permission and chain id are distinct: a granted
// wallet parked on another chain still returns false.
func (c *Controller) HasPermission(ctx context.Context, expected int64) (bool, error) {
	prov := c.providerFn()
	if prov == nil {
		return false, fmt.Errorf("no wallet connected")
	}

	var grants []provider.Permission
	if err := prov.Request(ctx, "wallet_getPermissions", nil, &grants); err != nil {
		return false, fmt.Errorf("read permissions: %w", err)
	}

	granted := false
	for _, g := range grants {
		if g.ParentCapability == "eth_accounts" {
			granted = true
			break
		}
	}
	if !granted {
		return false, nil
	}

	return c.Matches(ctx, expected)
}

// SwitchTo asks the wallet to switch chains. An unknown chain (4902) is
// handled by adding it and retrying once; a user rejection is final.
func (c *Controller) SwitchTo(ctx context.Context, chainID int64) error {
	if err := c.requestSwitch(ctx, chainID); err != nil {
		if !provider.IsUnknownChain(err) {
			return err
		}
		if addErr := c.AddChain(ctx, chainID); addErr != nil {
			return addErr
		}
		if err := c.requestSwitch(ctx, chainID); err != nil {
			return err
		}
	}

	c.store.Batch([]store.Update{
		{Path: "network.chainId", Value: chainID},
		{Path: "network.name", Value: c.Name(chainID)},
	})
	c.logger.Info("switched network", zap.Int64("chain_id", chainID), zap.String("name", c.Name(chainID)))
	return nil
}

func (c *Controller) requestSwitch(ctx context.Context, chainID int64) error {
	prov := c.providerFn()
	if prov == nil {
		return fmt.Errorf("no wallet connected")
	}
	params := provider.SwitchChainParams{ChainID: fmt.Sprintf("0x%x", chainID)}
	return prov.Request(ctx, "wallet_switchEthereumChain", params, nil)
}

// AddChain submits the full network descriptor to the wallet. A duplicate
// (-32602) counts as success; a user rejection (4001) surfaces as failure.
func (c *Controller) AddChain(ctx context.Context, chainID int64) error {
	prov := c.providerFn()
	if prov == nil {
		return fmt.Errorf("no wallet connected")
	}

	descriptor, ok := c.networks[chainID]
	if !ok {
		return fmt.Errorf("chain %d is not configured", chainID)
	}

	params := provider.AddChainParams{
		ChainID:        descriptor.HexChainID(),
		ChainName:      descriptor.Name,
		RPCURLs:        descriptor.RPCURLs,
		NativeCurrency: descriptor.NativeCurrency,
	}
	if descriptor.BlockExplorer != "" {
		params.BlockExplorerURLs = []string{descriptor.BlockExplorer}
	}

	err := prov.Request(ctx, "wallet_addEthereumChain", params, nil)
	if err != nil && provider.IsAlreadyAdded(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add chain %d: %w", chainID, err)
	}
	c.logger.Info("added network", zap.Int64("chain_id", chainID), zap.String("name", descriptor.Name))
	return nil
}
