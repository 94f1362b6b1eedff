// Package providertest provides a configurable in-memory wallet provider
// for tests.
package providertest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"stakedesk/internal/provider"
)

// Fake implements provider.Provider with per-method hooks. Nil hooks return
// zero values. Calls records method names in invocation order.
type Fake struct {
	KindValue string

	RequestFn            func(ctx context.Context, method string, params any, result any) error
	AccountsFn           func(ctx context.Context) ([]common.Address, error)
	RequestAccountsFn    func(ctx context.Context) ([]common.Address, error)
	ChainIDFn            func(ctx context.Context) (int64, error)
	BalanceAtFn          func(ctx context.Context, account common.Address) (*big.Int, error)
	CallContractFn       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGasFn        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransactionFn    func(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error)
	TransactionReceiptFn func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	mu       sync.Mutex
	calls    []string
	handlers map[string]map[int]provider.Handler
	nextID   int
	closed   bool
}

func New() *Fake {
	return &Fake{
		KindValue: "keystore",
		handlers:  make(map[string]map[int]provider.Handler),
	}
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()
}

// Calls returns the methods invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (f *Fake) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// Closed reports whether Close ran.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Emit pushes an event to registered handlers, as a wallet would.
func (f *Fake) Emit(event string, payload any) {
	f.mu.Lock()
	handlers := make([]provider.Handler, 0, len(f.handlers[event]))
	for _, h := range f.handlers[event] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (f *Fake) Kind() string { return f.KindValue }

func (f *Fake) Request(ctx context.Context, method string, params any, result any) error {
	f.record(method)
	if f.RequestFn != nil {
		return f.RequestFn(ctx, method, params, result)
	}
	return nil
}

func (f *Fake) Accounts(ctx context.Context) ([]common.Address, error) {
	f.record("eth_accounts")
	if f.AccountsFn != nil {
		return f.AccountsFn(ctx)
	}
	return nil, nil
}

func (f *Fake) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.record("eth_requestAccounts")
	if f.RequestAccountsFn != nil {
		return f.RequestAccountsFn(ctx)
	}
	return nil, nil
}

func (f *Fake) ChainID(ctx context.Context) (int64, error) {
	f.record("eth_chainId")
	if f.ChainIDFn != nil {
		return f.ChainIDFn(ctx)
	}
	return 0, nil
}

func (f *Fake) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	f.record("eth_getBalance")
	if f.BalanceAtFn != nil {
		return f.BalanceAtFn(ctx, account)
	}
	return big.NewInt(0), nil
}

func (f *Fake) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.record("eth_call")
	if f.CallContractFn != nil {
		return f.CallContractFn(ctx, msg, blockNumber)
	}
	return nil, nil
}

func (f *Fake) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.record("eth_estimateGas")
	if f.EstimateGasFn != nil {
		return f.EstimateGasFn(ctx, msg)
	}
	return 21000, nil
}

func (f *Fake) SendTransaction(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	f.record("eth_sendTransaction")
	if f.SendTransactionFn != nil {
		return f.SendTransactionFn(ctx, msg)
	}
	return common.Hash{}, nil
}

func (f *Fake) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.record("eth_getTransactionReceipt")
	if f.TransactionReceiptFn != nil {
		return f.TransactionReceiptFn(ctx, txHash)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: big.NewInt(1)}, nil
}

func (f *Fake) On(event string, handler provider.Handler) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]provider.Handler)
	}
	f.handlers[event][id] = handler
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers[event], id)
		f.mu.Unlock()
	}
}

func (f *Fake) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
