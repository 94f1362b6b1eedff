package network

import (
	"context"
	"testing"

	"stakedesk/internal/model"
	"stakedesk/internal/provider"
	"stakedesk/internal/provider/providertest"
	"stakedesk/internal/store"
)

func testNetworks() []model.NetworkDescriptor {
	return []model.NetworkDescriptor{
		{
			ChainID: 97,
			Name:    "BSC Testnet",
			RPCURLs: []string{"https://bsc-testnet.example"},
			NativeCurrency: model.NativeCurrency{
				Name: "Test BNB", Symbol: "tBNB", Decimals: 18,
			},
			BlockExplorer: "https://testnet.bscscan.example",
		},
	}
}

func newTestController(fake *providertest.Fake) (*Controller, *store.Store) {
	st := store.New(nil)
	c := NewController(func() provider.Provider { return fake }, testNetworks(), st, nil)
	return c, st
}

func TestSwitchToAddsUnknownChainAndRetries(t *testing.T) {
	fake := providertest.New()
	switchCalls := 0
	fake.RequestFn = func(_ context.Context, method string, _ any, _ any) error {
		switch method {
		case "wallet_switchEthereumChain":
			switchCalls++
			if switchCalls == 1 {
				return &provider.RPCError{Code: provider.CodeUnknownChain, Message: "not added"}
			}
			return nil
		case "wallet_addEthereumChain":
			return nil
		}
		return nil
	}
	c, st := newTestController(fake)

	if err := c.SwitchTo(context.Background(), 97); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if switchCalls != 2 {
		t.Fatalf("expected switch retry after add, got %d calls", switchCalls)
	}
	if fake.CallCount("wallet_addEthereumChain") != 1 {
		t.Fatalf("expected one add chain call")
	}
	if st.Get("network.chainId") != int64(97) {
		t.Fatalf("store indicator not updated: %v", st.Get("network.chainId"))
	}
}

func TestSwitchToUserRejectsAddChain(t *testing.T) {
	fake := providertest.New()
	fake.RequestFn = func(_ context.Context, method string, _ any, _ any) error {
		switch method {
		case "wallet_switchEthereumChain":
			return &provider.RPCError{Code: provider.CodeUnknownChain, Message: "not added"}
		case "wallet_addEthereumChain":
			return &provider.RPCError{Code: provider.CodeUserRejected, Message: "declined"}
		}
		return nil
	}
	c, _ := newTestController(fake)

	err := c.SwitchTo(context.Background(), 97)
	if !provider.IsUserRejection(err) {
		t.Fatalf("expected user rejection, got %v", err)
	}
	// no further switch retry after the rejected add
	if fake.CallCount("wallet_switchEthereumChain") != 1 {
		t.Fatalf("rejected add must stop the retry")
	}
}

func TestAddChainToleratesDuplicate(t *testing.T) {
	fake := providertest.New()
	fake.RequestFn = func(_ context.Context, method string, _ any, _ any) error {
		if method == "wallet_addEthereumChain" {
			return &provider.RPCError{Code: provider.CodeInvalidParams, Message: "already added"}
		}
		return nil
	}
	c, _ := newTestController(fake)

	if err := c.AddChain(context.Background(), 97); err != nil {
		t.Fatalf("duplicate add should succeed: %v", err)
	}
}

func TestAddChainUnknownDescriptor(t *testing.T) {
	c, _ := newTestController(providertest.New())
	if err := c.AddChain(context.Background(), 1234); err == nil {
		t.Fatalf("unconfigured chain should fail")
	}
}

func TestHasPermissionNeedsGrantAndChain(t *testing.T) {
	fake := providertest.New()
	grants := []provider.Permission{{ParentCapability: "eth_accounts"}}
	fake.RequestFn = func(_ context.Context, method string, _ any, result any) error {
		if method == "wallet_getPermissions" {
			*(result.(*[]provider.Permission)) = grants
		}
		return nil
	}
	fake.ChainIDFn = func(context.Context) (int64, error) { return 97, nil }
	c, _ := newTestController(fake)

	ok, err := c.HasPermission(context.Background(), 97)
	if err != nil || !ok {
		t.Fatalf("expected permission (ok=%v err=%v)", ok, err)
	}

	// granted but wrong chain
	ok, err = c.HasPermission(context.Background(), 5611)
	if err != nil || ok {
		t.Fatalf("wrong chain must fail the permission check (ok=%v err=%v)", ok, err)
	}

	// right chain but no grant
	grants = nil
	ok, err = c.HasPermission(context.Background(), 97)
	if err != nil || ok {
		t.Fatalf("missing grant must fail the permission check (ok=%v err=%v)", ok, err)
	}
}

func TestNameFallback(t *testing.T) {
	c, _ := newTestController(providertest.New())
	if got := c.Name(97); got != "BSC Testnet" {
		t.Fatalf("name mismatch: %q", got)
	}
	if got := c.Name(424242); got != "Chain 424242" {
		t.Fatalf("fallback mismatch: %q", got)
	}
}
