package provider

import "stakedesk/internal/model"

// SwitchChainParams is the payload of wallet_switchEthereumChain.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// AddChainParams is the payload of wallet_addEthereumChain.
type AddChainParams struct {
	ChainID           string               `json:"chainId"`
	ChainName         string               `json:"chainName"`
	RPCURLs           []string             `json:"rpcUrls"`
	NativeCurrency    model.NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string             `json:"blockExplorerUrls"`
}

// RequestPermissionsParams is the payload of wallet_requestPermissions.
type RequestPermissionsParams struct {
	EthAccounts struct{} `json:"eth_accounts"`
}

// Permission is one grant returned by wallet_getPermissions.
type Permission struct {
	ParentCapability string `json:"parentCapability"`
}
