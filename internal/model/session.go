package model

// Wallet kinds accepted by the session manager.
const (
	WalletKindKeystore      = "keystore"
	WalletKindWalletConnect = "walletconnect"
)

// Session is the single wallet session record held in the store.
// Address is empty and ChainID is zero while disconnected; both are set
// together on connect.
type Session struct {
	Address     string `json:"address"`
	ChainID     int64  `json:"chain_id"`
	WalletKind  string `json:"wallet_kind"`
	Connecting  bool   `json:"connecting"`
	ConnectedAt int64  `json:"connected_at"`
}

// Connected reports whether the session holds an authorized account.
func (s Session) Connected() bool {
	return s.Address != "" && s.ChainID != 0 && s.WalletKind != ""
}

// PersistedSession is the minimal durable record used for silent
// reconnection. Unknown fields from older schema versions are dropped
// on decode.
type PersistedSession struct {
	WalletKind string `json:"wallet_kind"`
	Address    string `json:"address"`
	ChainID    int64  `json:"chain_id"`
	Timestamp  int64  `json:"timestamp"`
}
