package model

import "fmt"

// NativeCurrency describes the gas currency of a network.
type NativeCurrency struct {
	Name     string `json:"name" mapstructure:"name"`
	Symbol   string `json:"symbol" mapstructure:"symbol"`
	Decimals uint8  `json:"decimals" mapstructure:"decimals"`
}

// NetworkDescriptor is the read-only configuration of one EVM network.
// RPCURLs is ordered; the first reachable endpoint wins.
type NetworkDescriptor struct {
	ChainID        int64          `json:"chain_id" mapstructure:"chain-id"`
	Name           string         `json:"name" mapstructure:"name"`
	RPCURLs        []string       `json:"rpc_urls" mapstructure:"rpc-urls"`
	BlockExplorer  string         `json:"block_explorer" mapstructure:"block-explorer"`
	NativeCurrency NativeCurrency `json:"native_currency" mapstructure:"native-currency"`
}

// Validate checks the fields required to add the network to a wallet.
func (n NetworkDescriptor) Validate() error {
	if n.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	if n.Name == "" {
		return fmt.Errorf("network name is required")
	}
	if len(n.RPCURLs) == 0 {
		return fmt.Errorf("at least one rpc url is required")
	}
	return nil
}

// HexChainID renders the chain id in the 0x form wallets expect.
func (n NetworkDescriptor) HexChainID() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}
