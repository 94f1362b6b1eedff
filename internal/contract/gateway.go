package contract

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakedesk/internal/model"
	"stakedesk/internal/provider"
)

// gasMargin is applied on top of the node's estimate: estimate + estimate/5.
const gasMarginDivisor = 5

// Options configures development-only behavior of the gateway.
type Options struct {
	// Development enables the admin allowlist below.
	Development bool
	// DevAdmins short-circuits IsAdmin in development mode.
	DevAdmins []common.Address
}

// Gateway is the typed surface over the staking contract and the ERC20
// tokens it manages. It holds no business state beyond caches; every
// method reads or writes through the bound wallet provider.
type Gateway struct {
	stakingAddr common.Address
	logger      *zap.Logger
	development bool
	devAdmins   map[common.Address]bool

	mu   sync.RWMutex
	prov provider.Provider
	from common.Address

	roleMu    sync.Mutex
	adminRole *[32]byte

	tokenMu sync.RWMutex
	tokens  map[common.Address]model.TokenInfo
}

func NewGateway(stakingAddr common.Address, logger *zap.Logger, opts Options) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	devAdmins := make(map[common.Address]bool, len(opts.DevAdmins))
	for _, a := range opts.DevAdmins {
		devAdmins[a] = true
	}
	return &Gateway{
		stakingAddr: stakingAddr,
		logger:      logger,
		development: opts.Development,
		devAdmins:   devAdmins,
		tokens:      make(map[common.Address]model.TokenInfo),
	}
}

// Rebind points the gateway at a new provider and sender. Called on every
// session change; a nil provider unbinds.
func (g *Gateway) Rebind(prov provider.Provider, from common.Address) {
	g.mu.Lock()
	g.prov = prov
	g.from = from
	g.mu.Unlock()
}

// Bound reports whether a provider is currently attached.
func (g *Gateway) Bound() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.prov != nil
}

// StakingAddress returns the bound staking contract address.
func (g *Gateway) StakingAddress() common.Address { return g.stakingAddr }

func (g *Gateway) binding() (provider.Provider, common.Address, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.prov == nil {
		return nil, common.Address{}, fmt.Errorf("no wallet bound")
	}
	return g.prov, g.from, nil
}

// call packs method+args, performs eth_call against to, and unpacks the
// raw outputs.
func (g *Gateway) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	prov, from, err := g.binding()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	var raw []byte
	err = withRetry(ctx, readRetries, readRetryDelay, func(ctx context.Context) error {
		var callErr error
		raw, callErr = prov.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func (g *Gateway) stakingCall(ctx context.Context, method string, args ...any) ([]any, error) {
	parsed, err := stakingABIInstance()
	if err != nil {
		return nil, err
	}
	return g.call(ctx, g.stakingAddr, parsed, method, args...)
}

func (g *Gateway) tokenCall(ctx context.Context, token common.Address, method string, args ...any) ([]any, error) {
	parsed, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	return g.call(ctx, token, parsed, method, args...)
}

// write runs the full send pipeline: a static call first so reverts fail
// fast and cheap, then a gas estimate with a fifth of margin, then the
// signed send, then one confirmation.
func (g *Gateway) write(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) (*types.Receipt, error) {
	prov, from, err := g.binding()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{From: from, To: &to, Data: data}

	if _, err := prov.CallContract(ctx, msg, nil); err != nil {
		return nil, fmt.Errorf("%s would revert: %w", method, err)
	}

	gas, err := prov.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate %s: %w", method, err)
	}
	msg.Gas = gas + gas/gasMarginDivisor

	txHash, err := prov.SendTransaction(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	g.logger.Info("transaction sent",
		zap.String("method", method),
		zap.String("tx", txHash.Hex()),
		zap.Uint64("gas_limit", msg.Gas),
	)

	receipt, err := provider.WaitMined(ctx, prov, txHash)
	if err != nil {
		return receipt, err
	}
	g.logger.Info("transaction confirmed",
		zap.String("method", method),
		zap.String("tx", txHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return receipt, nil
}

func (g *Gateway) stakingWrite(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	parsed, err := stakingABIInstance()
	if err != nil {
		return nil, err
	}
	return g.write(ctx, g.stakingAddr, parsed, method, args...)
}

// pairRecord mirrors the getPairs tuple layout.
type pairRecord struct {
	LpToken  common.Address
	Name     string
	Platform string
	Weight   *big.Int
	IsActive bool
}

// GetPairs returns every registered pair, active or not.
func (g *Gateway) GetPairs(ctx context.Context) ([]model.Pair, error) {
	out, err := g.stakingCall(ctx, "getPairs")
	if err != nil {
		return nil, err
	}
	records := *abi.ConvertType(out[0], new([]pairRecord)).(*[]pairRecord)
	pairs := make([]model.Pair, 0, len(records))
	for _, r := range records {
		pairs = append(pairs, model.Pair{
			LPToken:  r.LpToken.Hex(),
			Name:     r.Name,
			Platform: r.Platform,
			Weight:   r.Weight.Uint64(),
			IsActive: r.IsActive,
		})
	}
	return pairs, nil
}

// GetActivePairs returns the addresses of pairs currently open for staking.
func (g *Gateway) GetActivePairs(ctx context.Context) ([]common.Address, error) {
	out, err := g.stakingCall(ctx, "getActivePairs")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// ActivePairAt reads one slot of the active pair array.
func (g *Gateway) ActivePairAt(ctx context.Context, index uint64) (common.Address, error) {
	out, err := g.stakingCall(ctx, "activePairs", new(big.Int).SetUint64(index))
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out[0])
}

// PairInfo reads the registry entry for one LP token.
func (g *Gateway) PairInfo(ctx context.Context, lpToken common.Address) (model.Pair, error) {
	out, err := g.stakingCall(ctx, "pairs", lpToken)
	if err != nil {
		return model.Pair{}, err
	}
	name, err := asString(out[0])
	if err != nil {
		return model.Pair{}, err
	}
	platform, err := asString(out[1])
	if err != nil {
		return model.Pair{}, err
	}
	weight, err := asBigInt(out[2])
	if err != nil {
		return model.Pair{}, err
	}
	active, err := asBool(out[3])
	if err != nil {
		return model.Pair{}, err
	}
	return model.Pair{
		LPToken:  lpToken.Hex(),
		Name:     name,
		Platform: platform,
		Weight:   weight.Uint64(),
		IsActive: active,
	}, nil
}

// GetUserStakeInfo returns the user's position in one pair.
func (g *Gateway) GetUserStakeInfo(ctx context.Context, user, lpToken common.Address) (model.UserStake, error) {
	out, err := g.stakingCall(ctx, "getUserStakeInfo", user, lpToken)
	if err != nil {
		return model.UserStake{}, err
	}
	amount, err := asBigInt(out[0])
	if err != nil {
		return model.UserStake{}, err
	}
	pending, err := asBigInt(out[1])
	if err != nil {
		return model.UserStake{}, err
	}
	last, err := asBigInt(out[2])
	if err != nil {
		return model.UserStake{}, err
	}
	return model.UserStake{
		User:           user.Hex(),
		LPToken:        lpToken.Hex(),
		Amount:         amount,
		PendingRewards: pending,
		LastRewardTime: last.Uint64(),
	}, nil
}

// Earned returns the rewards claimable right now for one position.
func (g *Gateway) Earned(ctx context.Context, user, lpToken common.Address) (*big.Int, error) {
	out, err := g.stakingCall(ctx, "earned", user, lpToken)
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

func (g *Gateway) RewardToken(ctx context.Context) (common.Address, error) {
	out, err := g.stakingCall(ctx, "rewardToken")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out[0])
}

func (g *Gateway) HourlyRewardRate(ctx context.Context) (*big.Int, error) {
	out, err := g.stakingCall(ctx, "hourlyRewardRate")
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

func (g *Gateway) TotalWeight(ctx context.Context) (*big.Int, error) {
	out, err := g.stakingCall(ctx, "totalWeight")
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// GetSigners lists the multi-sig signer set.
func (g *Gateway) GetSigners(ctx context.Context) ([]common.Address, error) {
	out, err := g.stakingCall(ctx, "getSigners")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (g *Gateway) RequiredApprovals(ctx context.Context) (uint64, error) {
	out, err := g.stakingCall(ctx, "requiredApprovals")
	if err != nil {
		return 0, err
	}
	n, err := asBigInt(out[0])
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// ActionCount returns how many governance actions exist.
func (g *Gateway) ActionCount(ctx context.Context) (uint64, error) {
	out, err := g.stakingCall(ctx, "actionCount")
	if err != nil {
		return 0, err
	}
	n, err := asBigInt(out[0])
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// Action reads one entry of the actions mapping and keeps only the payload
// fields relevant to its kind.
func (g *Gateway) Action(ctx context.Context, id uint64) (model.GovernanceAction, error) {
	out, err := g.stakingCall(ctx, "actions", new(big.Int).SetUint64(id))
	if err != nil {
		return model.GovernanceAction{}, err
	}
	if len(out) < 19 {
		return model.GovernanceAction{}, fmt.Errorf("action %d: short output (%d fields)", id, len(out))
	}

	kindRaw, err := asUint8(out[0])
	if err != nil {
		return model.GovernanceAction{}, err
	}
	proposer, err := asAddress(out[1])
	if err != nil {
		return model.GovernanceAction{}, err
	}
	proposedAt, err := asBigInt(out[2])
	if err != nil {
		return model.GovernanceAction{}, err
	}
	approvals, err := asBigInt(out[3])
	if err != nil {
		return model.GovernanceAction{}, err
	}
	executed, err := asBool(out[4])
	if err != nil {
		return model.GovernanceAction{}, err
	}
	rejected, err := asBool(out[5])
	if err != nil {
		return model.GovernanceAction{}, err
	}
	expired, err := asBool(out[6])
	if err != nil {
		return model.GovernanceAction{}, err
	}

	action := model.GovernanceAction{
		ID:          id,
		Kind:        model.ActionKind(kindRaw),
		Proposer:    proposer.Hex(),
		ProposedAt:  proposedAt.Uint64(),
		Approvals:   approvals.Uint64(),
		Executed:    executed,
		Rejected:    rejected,
		ExpiredFlag: expired,
	}

	switch action.Kind {
	case model.ActionSetHourlyRewardRate:
		rate, err := asBigInt(out[7])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		action.Payload.NewHourlyRewardRate = rate
	case model.ActionUpdatePairWeights:
		addrs := *abi.ConvertType(out[8], new([]common.Address)).(*[]common.Address)
		pairs := make([]string, 0, len(addrs))
		for _, a := range addrs {
			pairs = append(pairs, a.Hex())
		}
		action.Payload.Pairs = pairs
		action.Payload.Weights = *abi.ConvertType(out[9], new([]*big.Int)).(*[]*big.Int)
	case model.ActionAddPair:
		addr, err := asAddress(out[10])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		name, err := asString(out[11])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		platform, err := asString(out[12])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		weight, err := asBigInt(out[13])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		action.Payload.PairToAdd = addr.Hex()
		action.Payload.PairNameToAdd = name
		action.Payload.PlatformToAdd = platform
		action.Payload.WeightToAdd = weight
	case model.ActionRemovePair:
		addr, err := asAddress(out[14])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		action.Payload.PairToRemove = addr.Hex()
	case model.ActionChangeSigner:
		newSigner, err := asAddress(out[15])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		oldSigner, err := asAddress(out[16])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		action.Payload.NewSigner = newSigner.Hex()
		action.Payload.SignerToRemove = oldSigner.Hex()
	case model.ActionWithdrawRewards:
		recipient, err := asAddress(out[17])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		amount, err := asBigInt(out[18])
		if err != nil {
			return model.GovernanceAction{}, err
		}
		action.Payload.Recipient = recipient.Hex()
		action.Payload.WithdrawAmount = amount
	}
	return action, nil
}

// AdminRole reads the contract's admin role hash once and caches it.
func (g *Gateway) AdminRole(ctx context.Context) ([32]byte, error) {
	g.roleMu.Lock()
	cached := g.adminRole
	g.roleMu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	out, err := g.stakingCall(ctx, "ADMIN_ROLE")
	if err != nil {
		return [32]byte{}, err
	}
	role, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("ADMIN_ROLE: unexpected output type %T", out[0])
	}

	g.roleMu.Lock()
	g.adminRole = &role
	g.roleMu.Unlock()
	return role, nil
}

func (g *Gateway) HasRole(ctx context.Context, role [32]byte, account common.Address) (bool, error) {
	out, err := g.stakingCall(ctx, "hasRole", role, account)
	if err != nil {
		return false, err
	}
	return asBool(out[0])
}

// IsAdmin reports whether account holds the admin role. In development
// mode a configured allowlist answers without touching the chain.
func (g *Gateway) IsAdmin(ctx context.Context, account common.Address) (bool, error) {
	if g.development && g.devAdmins[account] {
		return true, nil
	}
	role, err := g.AdminRole(ctx)
	if err != nil {
		return false, err
	}
	return g.HasRole(ctx, role, account)
}

// BalanceOf reads an ERC20 balance.
func (g *Gateway) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := g.tokenCall(ctx, token, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// Allowance reads the spender allowance granted by owner.
func (g *Gateway) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := g.tokenCall(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(out[0])
}

// TokenInfo returns cached ERC20 metadata, reading decimals, symbol and
// name on the first request for a token.
func (g *Gateway) TokenInfo(ctx context.Context, token common.Address) (model.TokenInfo, error) {
	g.tokenMu.RLock()
	if info, ok := g.tokens[token]; ok {
		g.tokenMu.RUnlock()
		return info, nil
	}
	g.tokenMu.RUnlock()

	out, err := g.tokenCall(ctx, token, "decimals")
	if err != nil {
		return model.TokenInfo{}, err
	}
	decimals, err := asUint8(out[0])
	if err != nil {
		return model.TokenInfo{}, err
	}
	out, err = g.tokenCall(ctx, token, "symbol")
	if err != nil {
		return model.TokenInfo{}, err
	}
	symbol, err := asString(out[0])
	if err != nil {
		return model.TokenInfo{}, err
	}
	out, err = g.tokenCall(ctx, token, "name")
	if err != nil {
		return model.TokenInfo{}, err
	}
	name, err := asString(out[0])
	if err != nil {
		return model.TokenInfo{}, err
	}

	info := model.TokenInfo{
		Address:  token.Hex(),
		Decimals: decimals,
		Symbol:   symbol,
		Name:     name,
	}
	g.tokenMu.Lock()
	g.tokens[token] = info
	g.tokenMu.Unlock()
	return info, nil
}

// Stake deposits amount of lpToken. The caller ensures allowance first.
func (g *Gateway) Stake(ctx context.Context, lpToken common.Address, amount *big.Int) (*types.Receipt, error) {
	return g.stakingWrite(ctx, "stake", lpToken, amount)
}

// Unstake withdraws amount of lpToken and pays pending rewards.
func (g *Gateway) Unstake(ctx context.Context, lpToken common.Address, amount *big.Int) (*types.Receipt, error) {
	return g.stakingWrite(ctx, "unstake", lpToken, amount)
}

// ClaimRewards pays out pending rewards for one pair.
func (g *Gateway) ClaimRewards(ctx context.Context, lpToken common.Address) (*types.Receipt, error) {
	return g.stakingWrite(ctx, "claimRewards", lpToken)
}

// ExecuteAction runs an approved governance action.
func (g *Gateway) ExecuteAction(ctx context.Context, id uint64) (*types.Receipt, error) {
	return g.stakingWrite(ctx, "executeAction", new(big.Int).SetUint64(id))
}

// Approve grants spender an ERC20 allowance on token.
func (g *Gateway) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	parsed, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	return g.write(ctx, token, parsed, "approve", spender, amount)
}

func asBigInt(v any) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int output, got %T", v)
	}
	return n, nil
}

func asAddress(v any) (common.Address, error) {
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address output, got %T", v)
	}
	return a, nil
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool output, got %T", v)
	}
	return b, nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string output, got %T", v)
	}
	return s, nil
}

func asUint8(v any) (uint8, error) {
	u, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8 output, got %T", v)
	}
	return u, nil
}
