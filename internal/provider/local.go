package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"stakedesk/internal/model"
)

// LocalConfig configures the keystore-backed provider.
type LocalConfig struct {
	KeystoreDir string
	Password    string
	ChainID     int64
	Networks    []model.NetworkDescriptor
	// ReadsPerSecond bounds outbound read RPC; zero means 20.
	ReadsPerSecond float64
}

// Local is the keystore-backed wallet provider: keys live in a go-ethereum
// encrypted keystore and transactions are signed locally, the analogue of an
// injected wallet that holds its own keys. Chain switching re-dials the RPC
// endpoint of the registered network and emits chainChanged.
type Local struct {
	*emitter
	logger   *zap.Logger
	ks       *keystore.KeyStore
	password string
	limiter  *rate.Limiter

	mu        sync.RWMutex
	networks  map[int64]model.NetworkDescriptor
	chainID   int64
	rpcClient *rpc.Client
	eth       *ethclient.Client
}

// NewLocal opens the keystore and dials the configured network.
func NewLocal(ctx context.Context, cfg LocalConfig, logger *zap.Logger) (*Local, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeystoreDir == "" {
		return nil, fmt.Errorf("keystore dir is required")
	}

	networks := make(map[int64]model.NetworkDescriptor, len(cfg.Networks))
	for _, n := range cfg.Networks {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("network %d: %w", n.ChainID, err)
		}
		networks[n.ChainID] = n
	}

	descriptor, ok := networks[cfg.ChainID]
	if !ok {
		return nil, fmt.Errorf("chain %d is not configured", cfg.ChainID)
	}

	rps := cfg.ReadsPerSecond
	if rps <= 0 {
		rps = 20
	}

	l := &Local{
		emitter:  newEmitter(),
		logger:   logger,
		ks:       keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP),
		password: cfg.Password,
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)),
		networks: networks,
	}

	if err := l.dialNetwork(ctx, descriptor); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Local) Kind() string { return model.WalletKindKeystore }

// dialNetwork tries the ordered RPC endpoints and verifies the chain id
// before swapping clients in.
func (l *Local) dialNetwork(ctx context.Context, descriptor model.NetworkDescriptor) error {
	var lastErr error
	for _, url := range descriptor.RPCURLs {
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		eth := ethclient.NewClient(rpcClient)

		chainID, err := eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			lastErr = err
			continue
		}
		if chainID.Int64() != descriptor.ChainID {
			rpcClient.Close()
			lastErr = fmt.Errorf("endpoint %s reports chain %d, expected %d", url, chainID.Int64(), descriptor.ChainID)
			continue
		}

		l.mu.Lock()
		if l.rpcClient != nil {
			l.rpcClient.Close()
		}
		l.rpcClient = rpcClient
		l.eth = eth
		l.chainID = descriptor.ChainID
		l.mu.Unlock()
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rpc endpoints configured")
	}
	return fmt.Errorf("dial chain %d: %w", descriptor.ChainID, lastErr)
}

func (l *Local) client() (*ethclient.Client, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.eth == nil {
		return nil, fmt.Errorf("not connected")
	}
	return l.eth, nil
}

func (l *Local) Request(ctx context.Context, method string, params any, result any) error {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		accounts, err := l.Accounts(ctx)
		if err != nil {
			return err
		}
		return assign(result, accounts)

	case "eth_chainId":
		l.mu.RLock()
		hex := fmt.Sprintf("0x%x", l.chainID)
		l.mu.RUnlock()
		return assign(result, hex)

	case "wallet_getPermissions", "wallet_requestPermissions":
		// local keys imply a standing eth_accounts grant
		grants := []Permission{}
		if len(l.ks.Accounts()) > 0 {
			grants = append(grants, Permission{ParentCapability: "eth_accounts"})
		}
		return assign(result, grants)

	case "wallet_switchEthereumChain":
		p, ok := params.(SwitchChainParams)
		if !ok {
			return &RPCError{Code: CodeInvalidParams, Message: "expected switch chain params"}
		}
		return l.switchChain(ctx, p)

	case "wallet_addEthereumChain":
		p, ok := params.(AddChainParams)
		if !ok {
			return &RPCError{Code: CodeInvalidParams, Message: "expected add chain params"}
		}
		return l.addChain(p)

	default:
		l.mu.RLock()
		rpcClient := l.rpcClient
		l.mu.RUnlock()
		if rpcClient == nil {
			return fmt.Errorf("not connected")
		}
		args, _ := params.([]any)
		return rpcClient.CallContext(ctx, result, method, args...)
	}
}

func (l *Local) switchChain(ctx context.Context, p SwitchChainParams) error {
	chainID, err := parseHexChainID(p.ChainID)
	if err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}

	l.mu.RLock()
	descriptor, known := l.networks[chainID]
	current := l.chainID
	l.mu.RUnlock()

	if !known {
		return &RPCError{Code: CodeUnknownChain, Message: fmt.Sprintf("chain %d has not been added", chainID)}
	}
	if current == chainID {
		return nil
	}

	if err := l.dialNetwork(ctx, descriptor); err != nil {
		return err
	}
	l.logger.Info("switched chain", zap.Int64("chain_id", chainID))
	l.emit(EventChainChanged, chainID)
	return nil
}

func (l *Local) addChain(p AddChainParams) error {
	chainID, err := parseHexChainID(p.ChainID)
	if err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.networks[chainID]; exists {
		return &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("chain %d already added", chainID)}
	}

	descriptor := model.NetworkDescriptor{
		ChainID:        chainID,
		Name:           p.ChainName,
		RPCURLs:        p.RPCURLs,
		NativeCurrency: p.NativeCurrency,
	}
	if len(p.BlockExplorerURLs) > 0 {
		descriptor.BlockExplorer = p.BlockExplorerURLs[0]
	}
	if err := descriptor.Validate(); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}

	l.networks[chainID] = descriptor
	l.logger.Info("added chain", zap.Int64("chain_id", chainID), zap.String("name", p.ChainName))
	return nil
}

func (l *Local) Accounts(_ context.Context) ([]common.Address, error) {
	accounts := l.ks.Accounts()
	out := make([]common.Address, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Address)
	}
	return out, nil
}

func (l *Local) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	accounts, err := l.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, &RPCError{Code: CodeUserRejected, Message: "no accounts in keystore"}
	}
	return accounts, nil
}

func (l *Local) ChainID(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.eth == nil {
		return 0, fmt.Errorf("not connected")
	}
	return l.chainID, nil
}

func (l *Local) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	eth, err := l.client()
	if err != nil {
		return nil, err
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return eth.BalanceAt(ctx, account, nil)
}

func (l *Local) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	eth, err := l.client()
	if err != nil {
		return nil, err
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return eth.CallContract(ctx, msg, blockNumber)
}

func (l *Local) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	eth, err := l.client()
	if err != nil {
		return 0, err
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return eth.EstimateGas(ctx, msg)
}

// SendTransaction signs with the keystore passphrase and broadcasts.
func (l *Local) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	eth, err := l.client()
	if err != nil {
		return common.Hash{}, err
	}

	accounts := l.ks.Accounts()
	if len(accounts) == 0 {
		return common.Hash{}, &RPCError{Code: CodeUserRejected, Message: "no accounts in keystore"}
	}
	account := accounts[0]
	if msg.From != (common.Address{}) {
		found := false
		for _, a := range accounts {
			if a.Address == msg.From {
				account = a
				found = true
				break
			}
		}
		if !found {
			return common.Hash{}, &RPCError{Code: CodeUserRejected, Message: "from address not in keystore"}
		}
	}

	nonce, err := eth.PendingNonceAt(ctx, account.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice := msg.GasPrice
	if gasPrice == nil {
		gasPrice, err = eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
		}
	}
	gas := msg.Gas
	if gas == 0 {
		gas, err = eth.EstimateGas(ctx, msg)
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	value := msg.Value
	if value == nil {
		value = big.NewInt(0)
	}
	tx := types.NewTransaction(nonce, *msg.To, value, gas, gasPrice, msg.Data)

	l.mu.RLock()
	chainID := big.NewInt(l.chainID)
	l.mu.RUnlock()

	signed, err := l.ks.SignTxWithPassphrase(account, l.password, tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash(), nil
}

func (l *Local) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	eth, err := l.client()
	if err != nil {
		return nil, err
	}
	return eth.TransactionReceipt(ctx, txHash)
}

func (l *Local) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rpcClient != nil {
		l.rpcClient.Close()
		l.rpcClient = nil
		l.eth = nil
	}
}

func parseHexChainID(hex string) (int64, error) {
	cleaned := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hex)), "0x")
	if cleaned == "" {
		return 0, fmt.Errorf("chain id is empty")
	}
	id, err := strconv.ParseInt(cleaned, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q", hex)
	}
	return id, nil
}

// assign copies value into the caller's result pointer via JSON, matching
// how transports deliver structured responses.
func assign(result any, value any) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}
