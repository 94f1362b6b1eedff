package provider

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Events pushed by a wallet provider. Chain ids arrive already parsed to
// int64; hex translation happens inside the provider and nowhere else.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Handler receives an event payload: []common.Address for accountsChanged,
// int64 for chainChanged, error (possibly nil) for disconnect.
type Handler func(payload any)

// Provider is the only place raw wallet and node calls live. Everything
// else in the module goes through it. Requests fail with *RPCError when the
// transport reports a coded error; no retries happen at this layer.
type Provider interface {
	// Kind names the wallet flavor ("keystore" or "walletconnect").
	Kind() string

	// Request performs a raw wallet RPC (wallet_*, eth_accounts, ...).
	// result may be nil when the caller discards the response.
	Request(ctx context.Context, method string, params any, result any) error

	// Accounts lists authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts prompts for account access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the current chain id as an integer.
	ChainID(ctx context.Context) (int64, error)

	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// On registers an event handler and returns its removal func.
	On(event string, handler Handler) (remove func())

	Close()
}

// emitter fans events out to registered handlers. Both provider
// implementations embed it.
type emitter struct {
	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[string]map[int]Handler)}
}

func (e *emitter) On(event string, handler Handler) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[int]Handler)
	}
	e.handlers[event][id] = handler
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.handlers[event], id)
		e.mu.Unlock()
	}
}

func (e *emitter) emit(event string, payload any) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers[event]))
	for _, h := range e.handlers[event] {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}
