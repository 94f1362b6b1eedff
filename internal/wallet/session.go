package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakedesk/internal/model"
	"stakedesk/internal/provider"
	"stakedesk/internal/storage"
	"stakedesk/internal/store"
)

// Session events emitted by the manager.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventAccountChanged = "accountChanged"
	EventChainChanged   = "chainChanged"
)

// persistKey is the durable record used for silent reconnection.
const persistKey = "wallet.session"

const defaultConnectTimeout = 45 * time.Second

// Factory builds a provider for a wallet kind. The walletconnect kind may
// block on pairing until its prompt timeout.
type Factory func(ctx context.Context, kind string) (provider.Provider, error)

// Manager owns the wallet session lifecycle: connect, disconnect, account
// and chain change handling, and persisted reconnection. It is the only
// writer of the session subtree in the store.
type Manager struct {
	store   *store.Store
	backend storage.Backend
	factory Factory
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	prov     provider.Provider
	removers []func()
	inflight *attempt

	evMu     sync.Mutex
	handlers map[string]map[int]func(payload any)
	nextID   int
}

// attempt is one in-flight connect; concurrent callers wait on done and
// observe the same outcome.
type attempt struct {
	done    chan struct{}
	session model.Session
	err     error
}

type Options struct {
	// ConnectTimeout caps one connect attempt; zero means 45s.
	ConnectTimeout time.Duration
}

func NewManager(st *store.Store, backend storage.Backend, factory Factory, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	m := &Manager{
		store:    st,
		backend:  backend,
		factory:  factory,
		logger:   logger,
		timeout:  timeout,
		handlers: make(map[string]map[int]func(payload any)),
	}
	m.writeSession(model.Session{})
	return m
}

// Session reads the current session from the store.
func (m *Manager) Session() model.Session {
	s := model.Session{}
	if v, ok := m.store.Get("session.address").(string); ok {
		s.Address = v
	}
	if v, ok := m.store.Get("session.chainId").(int64); ok {
		s.ChainID = v
	}
	if v, ok := m.store.Get("session.walletKind").(string); ok {
		s.WalletKind = v
	}
	if v, ok := m.store.Get("session.connecting").(bool); ok {
		s.Connecting = v
	}
	if v, ok := m.store.Get("session.connectedAt").(int64); ok {
		s.ConnectedAt = v
	}
	return s
}

// Provider returns the active provider, or nil while disconnected.
func (m *Manager) Provider() provider.Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prov
}

// Connect establishes a session with the given wallet kind. Concurrent
// calls are serialized: while an attempt is in flight, later calls wait for
// it and resolve to its outcome without issuing a second prompt.
func (m *Manager) Connect(ctx context.Context, kind string) (model.Session, error) {
	m.mu.Lock()
	if m.prov != nil {
		current := m.Session()
		if current.Connected() {
			m.mu.Unlock()
			return current, nil
		}
	}
	if a := m.inflight; a != nil {
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return model.Session{}, ctx.Err()
		case <-a.done:
			return a.session, a.err
		}
	}
	a := &attempt{done: make(chan struct{})}
	m.inflight = a
	m.mu.Unlock()

	m.store.Set("session.connecting", true)

	attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
	a.session, a.err = m.doConnect(attemptCtx, kind)
	cancel()

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()
	m.store.Set("session.connecting", false)
	close(a.done)

	if a.err != nil {
		return model.Session{}, a.err
	}
	m.emit(EventConnected, a.session)
	return a.session, nil
}

func (m *Manager) doConnect(ctx context.Context, kind string) (model.Session, error) {
	if kind != model.WalletKindKeystore && kind != model.WalletKindWalletConnect {
		return model.Session{}, fmt.Errorf("unknown wallet kind %q", kind)
	}

	prov, err := m.factory(ctx, kind)
	if err != nil {
		return model.Session{}, fmt.Errorf("open %s wallet: %w", kind, err)
	}

	accounts, err := prov.RequestAccounts(ctx)
	if err != nil {
		prov.Close()
		return model.Session{}, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		prov.Close()
		return model.Session{}, &provider.RPCError{Code: provider.CodeUserRejected, Message: "no account authorized"}
	}

	chainID, err := prov.ChainID(ctx)
	if err != nil {
		prov.Close()
		return model.Session{}, fmt.Errorf("read chain id: %w", err)
	}

	session := model.Session{
		Address:     accounts[0].Hex(),
		ChainID:     chainID,
		WalletKind:  kind,
		ConnectedAt: time.Now().UnixMilli(),
	}

	m.adopt(prov, session)

	if err := m.persist(ctx, session); err != nil {
		m.logger.Warn("persist session failed", zap.Error(err))
	}

	m.logger.Info("wallet connected",
		zap.String("kind", kind),
		zap.String("address", session.Address),
		zap.Int64("chain_id", chainID),
	)
	return session, nil
}

// adopt installs the provider, writes the session, and wires wallet events.
func (m *Manager) adopt(prov provider.Provider, session model.Session) {
	m.mu.Lock()
	m.prov = prov
	m.removers = []func(){
		prov.On(provider.EventAccountsChanged, m.handleAccountsChanged),
		prov.On(provider.EventChainChanged, m.handleChainChanged),
		prov.On(provider.EventDisconnect, m.handleProviderDisconnect),
	}
	m.mu.Unlock()

	m.writeSession(session)
}

func (m *Manager) persist(ctx context.Context, session model.Session) error {
	record := model.PersistedSession{
		WalletKind: session.WalletKind,
		Address:    session.Address,
		ChainID:    session.ChainID,
		Timestamp:  time.Now().UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return m.backend.Save(ctx, persistKey, data)
}

// CheckPreviousConnection restores a persisted session without prompting.
// The persisted record is untrusted: the wallet must still list the same
// address via eth_accounts, otherwise the record is cleared.
func (m *Manager) CheckPreviousConnection(ctx context.Context) (model.Session, bool, error) {
	data, ok, err := m.backend.Load(ctx, persistKey)
	if err != nil || !ok {
		return model.Session{}, false, err
	}

	var record model.PersistedSession
	if err := json.Unmarshal(data, &record); err != nil || record.Address == "" || record.WalletKind == "" {
		_ = m.backend.Delete(ctx, persistKey)
		return model.Session{}, false, nil
	}

	prov, err := m.factory(ctx, record.WalletKind)
	if err != nil {
		return model.Session{}, false, fmt.Errorf("open %s wallet: %w", record.WalletKind, err)
	}

	accounts, err := prov.Accounts(ctx)
	if err != nil {
		prov.Close()
		return model.Session{}, false, fmt.Errorf("verify accounts: %w", err)
	}

	authorized := false
	for _, a := range accounts {
		if strings.EqualFold(a.Hex(), record.Address) {
			authorized = true
			break
		}
	}
	if !authorized {
		prov.Close()
		_ = m.backend.Delete(ctx, persistKey)
		m.logger.Info("persisted session no longer authorized", zap.String("address", record.Address))
		return model.Session{}, false, nil
	}

	chainID, err := prov.ChainID(ctx)
	if err != nil {
		prov.Close()
		return model.Session{}, false, fmt.Errorf("read chain id: %w", err)
	}

	session := model.Session{
		Address:     common.HexToAddress(record.Address).Hex(),
		ChainID:     chainID,
		WalletKind:  record.WalletKind,
		ConnectedAt: time.Now().UnixMilli(),
	}
	m.adopt(prov, session)
	m.emit(EventConnected, session)
	return session, true, nil
}

// Disconnect tears the session down: store cleared first, then the
// persisted record, then provider listeners and the provider itself (which
// resolves any pending pairing).
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	removers := m.removers
	prov := m.prov
	m.removers = nil
	m.prov = nil
	m.mu.Unlock()

	m.writeSession(model.Session{})

	if err := m.backend.Delete(ctx, persistKey); err != nil {
		m.logger.Warn("clear persisted session failed", zap.Error(err))
	}

	for _, remove := range removers {
		remove()
	}
	if prov != nil {
		prov.Close()
	}

	m.emit(EventDisconnected, nil)
	m.logger.Info("wallet disconnected")
	return nil
}

func (m *Manager) handleAccountsChanged(payload any) {
	accounts, ok := payload.([]common.Address)
	if !ok {
		return
	}
	if len(accounts) == 0 {
		_ = m.Disconnect(context.Background())
		return
	}

	address := accounts[0].Hex()
	if address == m.Session().Address {
		return
	}
	m.store.Set("session.address", address)
	m.emit(EventAccountChanged, address)
	m.logger.Info("account changed", zap.String("address", address))
}

// handleChainChanged updates the chain id only; a chain switch never tears
// the session down.
func (m *Manager) handleChainChanged(payload any) {
	chainID, ok := payload.(int64)
	if !ok {
		return
	}
	m.store.Set("session.chainId", chainID)
	m.emit(EventChainChanged, chainID)
	m.logger.Info("chain changed", zap.Int64("chain_id", chainID))
}

func (m *Manager) handleProviderDisconnect(any) {
	_ = m.Disconnect(context.Background())
}

func (m *Manager) writeSession(s model.Session) {
	m.store.Batch([]store.Update{
		{Path: "session.address", Value: s.Address},
		{Path: "session.chainId", Value: s.ChainID},
		{Path: "session.walletKind", Value: s.WalletKind},
		{Path: "session.connectedAt", Value: s.ConnectedAt},
	})
}

// Subscribe registers a session event handler; the returned func removes it.
func (m *Manager) Subscribe(event string, fn func(payload any)) func() {
	m.evMu.Lock()
	id := m.nextID
	m.nextID++
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[int]func(payload any))
	}
	m.handlers[event][id] = fn
	m.evMu.Unlock()

	return func() {
		m.evMu.Lock()
		delete(m.handlers[event], id)
		m.evMu.Unlock()
	}
}

func (m *Manager) emit(event string, payload any) {
	m.evMu.Lock()
	handlers := make([]func(payload any), 0, len(m.handlers[event]))
	for _, h := range m.handlers[event] {
		handlers = append(handlers, h)
	}
	m.evMu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}
