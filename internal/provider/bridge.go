package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stakedesk/internal/model"
)

// BridgeConfig configures the remote wallet bridge.
type BridgeConfig struct {
	URL string
	// ReadTimeout bounds plain RPC reads; zero means 8s.
	ReadTimeout time.Duration
	// PromptTimeout bounds calls that wait on the user; zero means 60s.
	PromptTimeout time.Duration
}

// Bridge talks JSON-RPC over a websocket to a remote wallet application
// that prompts its user for approvals, the walletconnect-style pairing.
// The wallet pushes accountsChanged, chainChanged, and disconnect
// notifications over the same socket.
type Bridge struct {
	*emitter
	logger *zap.Logger
	cfg    BridgeConfig

	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan bridgeResponse
	nextID    uint64

	closeOnce sync.Once
	done      chan struct{}
}

type bridgeMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *bridgeError    `json:"error,omitempty"`
}

type bridgeError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type bridgeResponse struct {
	result json.RawMessage
	err    error
}

// NewBridge dials the wallet bridge and starts the read loop.
func NewBridge(ctx context.Context, cfg BridgeConfig, logger *zap.Logger) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 8 * time.Second
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = 60 * time.Second
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial wallet bridge: %w", err)
	}

	b := &Bridge{
		emitter: newEmitter(),
		logger:  logger,
		cfg:     cfg,
		conn:    conn,
		pending: make(map[uint64]chan bridgeResponse),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *Bridge) Kind() string { return model.WalletKindWalletConnect }

func (b *Bridge) readLoop() {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.failPending(fmt.Errorf("wallet bridge closed: %w", err))
			b.closeOnce.Do(func() { close(b.done) })
			b.emit(EventDisconnect, err)
			return
		}

		var msg bridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.logger.Warn("bridge message unreadable", zap.Error(err))
			continue
		}

		if msg.ID != nil {
			b.resolve(*msg.ID, msg)
			continue
		}
		b.handleNotification(msg)
	}
}

func (b *Bridge) resolve(id uint64, msg bridgeMessage) {
	b.pendingMu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.pendingMu.Unlock()
	if !ok {
		return
	}

	if msg.Error != nil {
		var data any
		if len(msg.Error.Data) > 0 {
			_ = json.Unmarshal(msg.Error.Data, &data)
		}
		ch <- bridgeResponse{err: &RPCError{Code: msg.Error.Code, Message: msg.Error.Message, Data: data}}
		return
	}
	ch <- bridgeResponse{result: msg.Result}
}

func (b *Bridge) handleNotification(msg bridgeMessage) {
	switch msg.Method {
	case EventAccountsChanged:
		var accounts []common.Address
		if err := json.Unmarshal(msg.Params, &accounts); err != nil {
			b.logger.Warn("bad accountsChanged payload", zap.Error(err))
			return
		}
		b.emit(EventAccountsChanged, accounts)

	case EventChainChanged:
		var params []string
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params) == 0 {
			b.logger.Warn("bad chainChanged payload", zap.Error(err))
			return
		}
		chainID, err := parseHexChainID(params[0])
		if err != nil {
			b.logger.Warn("bad chainChanged chain id", zap.Error(err))
			return
		}
		b.emit(EventChainChanged, chainID)

	case EventDisconnect:
		b.emit(EventDisconnect, fmt.Errorf("wallet disconnected"))

	default:
		b.logger.Debug("unknown bridge notification", zap.String("method", msg.Method))
	}
}

func (b *Bridge) failPending(err error) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for id, ch := range b.pending {
		ch <- bridgeResponse{err: err}
		delete(b.pending, id)
	}
}

// promptMethods wait on the user rather than the node and get the longer
// timeout.
var promptMethods = map[string]bool{
	"eth_requestAccounts":        true,
	"eth_sendTransaction":        true,
	"wallet_requestPermissions":  true,
	"wallet_switchEthereumChain": true,
	"wallet_addEthereumChain":    true,
}

func (b *Bridge) Request(ctx context.Context, method string, params any, result any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	b.pendingMu.Lock()
	b.nextID++
	id := b.nextID
	ch := make(chan bridgeResponse, 1)
	b.pending[id] = ch
	b.pendingMu.Unlock()

	msg := bridgeMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	err = b.conn.WriteMessage(websocket.TextMessage, data)
	b.writeMu.Unlock()
	if err != nil {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
		return fmt.Errorf("write to wallet bridge: %w", err)
	}

	timeout := b.cfg.ReadTimeout
	if promptMethods[method] {
		timeout = b.cfg.PromptTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return fmt.Errorf("wallet bridge closed")
	case <-timer.C:
		return fmt.Errorf("%s timed out after %s", method, timeout)
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
		if result == nil || len(resp.result) == 0 {
			return nil
		}
		return json.Unmarshal(resp.result, result)
	}
}

// marshalParams normalizes params into the JSON-RPC positional array form:
// nil becomes [], a slice passes through, anything else is wrapped.
func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return json.RawMessage("[]"), nil
	case []any:
		return json.Marshal(p)
	default:
		return json.Marshal([]any{p})
	}
}

func (b *Bridge) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := b.Request(ctx, "eth_accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (b *Bridge) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := b.Request(ctx, "eth_requestAccounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (b *Bridge) ChainID(ctx context.Context) (int64, error) {
	var hex string
	if err := b.Request(ctx, "eth_chainId", nil, &hex); err != nil {
		return 0, err
	}
	return parseHexChainID(hex)
}

func (b *Bridge) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var result hexutil.Big
	params := []any{account.Hex(), "latest"}
	if err := b.Request(ctx, "eth_getBalance", params, &result); err != nil {
		return nil, err
	}
	return result.ToInt(), nil
}

func (b *Bridge) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	block := "latest"
	if blockNumber != nil {
		block = hexutil.EncodeBig(blockNumber)
	}
	var result hexutil.Bytes
	if err := b.Request(ctx, "eth_call", []any{callObject(msg), block}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Bridge) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var result hexutil.Uint64
	if err := b.Request(ctx, "eth_estimateGas", []any{callObject(msg)}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// SendTransaction hands the unsigned call to the remote wallet, which signs
// after prompting its user.
func (b *Bridge) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	var hash common.Hash
	if err := b.Request(ctx, "eth_sendTransaction", []any{callObject(msg)}, &hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (b *Bridge) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var raw json.RawMessage
	if err := b.Request(ctx, "eth_getTransactionReceipt", []any{txHash.Hex()}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}
	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	return &receipt, nil
}

func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	_ = b.conn.Close()
}

func callObject(msg ethereum.CallMsg) map[string]any {
	obj := make(map[string]any)
	if msg.From != (common.Address{}) {
		obj["from"] = msg.From.Hex()
	}
	if msg.To != nil {
		obj["to"] = msg.To.Hex()
	}
	if len(msg.Data) > 0 {
		obj["data"] = hexutil.Encode(msg.Data)
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		obj["value"] = hexutil.EncodeBig(msg.Value)
	}
	if msg.Gas > 0 {
		obj["gas"] = hexutil.EncodeUint64(msg.Gas)
	}
	if msg.GasPrice != nil && msg.GasPrice.Sign() > 0 {
		obj["gasPrice"] = hexutil.EncodeBig(msg.GasPrice)
	}
	return obj
}
