package staking

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakedesk/internal/format"
	"stakedesk/internal/model"
	"stakedesk/internal/store"
)

// Gateway is the slice of the contract surface this controller needs.
// *contract.Gateway satisfies it.
type Gateway interface {
	StakingAddress() common.Address
	PairInfo(ctx context.Context, lpToken common.Address) (model.Pair, error)
	TokenInfo(ctx context.Context, token common.Address) (model.TokenInfo, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	GetUserStakeInfo(ctx context.Context, user, lpToken common.Address) (model.UserStake, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Receipt, error)
	Stake(ctx context.Context, lpToken common.Address, amount *big.Int) (*types.Receipt, error)
	Unstake(ctx context.Context, lpToken common.Address, amount *big.Int) (*types.Receipt, error)
	ClaimRewards(ctx context.Context, lpToken common.Address) (*types.Receipt, error)
}

// Panel tabs.
const (
	TabStake   = "stake"
	TabUnstake = "unstake"
	TabClaim   = "claim"
)

const (
	defaultDebounce = 300 * time.Millisecond
	defaultRefresh  = 30 * time.Second

	// sliderFracDigits caps the fractional digits a slider move writes into
	// the amount field.
	sliderFracDigits = 6
)

// panelPath prefixes every store write of this controller.
const panelPath = "staking.panel"

// ValidationError is produced locally, before any network call, and is
// rendered inline rather than surfaced as a failure.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type Options struct {
	// Debounce delays validation while the user is typing; zero means 300ms.
	Debounce time.Duration
	// RefreshInterval drives the background poll; zero means 30s.
	RefreshInterval time.Duration
	// Epsilon suppresses refresh writes whose delta does not exceed it,
	// in raw token units. Nil means exact-change suppression only.
	Epsilon *big.Int
}

// Controller orchestrates the staking panel: amount/slider binding,
// validation, stake/unstake/claim execution, and the periodic refresh of
// balances and rewards. All observable state lives under staking.panel in
// the store.
type Controller struct {
	store   *store.Store
	gateway Gateway
	logger  *zap.Logger

	debounce time.Duration
	refresh  time.Duration
	epsilon  *big.Int

	// generation invalidates stale refresh loops and debounce timers after
	// Unmount or a remount.
	generation atomic.Uint64

	mu            sync.Mutex
	user          common.Address
	lpToken       common.Address
	pair          model.Pair
	token         model.TokenInfo
	balance       *big.Int
	staked        *big.Int
	debounceTimer *time.Timer
	stopRefresh   chan struct{}
}

func NewController(st *store.Store, gw Gateway, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	refresh := opts.RefreshInterval
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	epsilon := opts.Epsilon
	if epsilon == nil {
		epsilon = big.NewInt(0)
	}
	return &Controller{
		store:    st,
		gateway:  gw,
		logger:   logger,
		debounce: debounce,
		refresh:  refresh,
		epsilon:  epsilon,
	}
}

// Mount selects a pair for user and loads the initial panel state, then
// starts the refresh loop. A second Mount invalidates the first.
func (c *Controller) Mount(ctx context.Context, user, lpToken common.Address) error {
	gen := c.generation.Add(1)

	pair, err := c.gateway.PairInfo(ctx, lpToken)
	if err != nil {
		return fmt.Errorf("load pair: %w", err)
	}
	token, err := c.gateway.TokenInfo(ctx, lpToken)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	balance, err := c.gateway.BalanceOf(ctx, lpToken, user)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	position, err := c.gateway.GetUserStakeInfo(ctx, user, lpToken)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}

	c.mu.Lock()
	if c.stopRefresh != nil {
		close(c.stopRefresh)
	}
	c.user = user
	c.lpToken = lpToken
	c.pair = pair
	c.token = token
	c.balance = balance
	c.staked = position.Amount
	stop := make(chan struct{})
	c.stopRefresh = stop
	c.mu.Unlock()

	c.store.Batch([]store.Update{
		{Path: panelPath + ".pair", Value: lpToken.Hex()},
		{Path: panelPath + ".pairName", Value: pair.Name},
		{Path: panelPath + ".tab", Value: TabStake},
		{Path: panelPath + ".amount", Value: ""},
		{Path: panelPath + ".percent", Value: float64(0)},
		{Path: panelPath + ".error", Value: ""},
		{Path: panelPath + ".balance", Value: balance},
		{Path: panelPath + ".staked", Value: position.Amount},
		{Path: panelPath + ".pendingRewards", Value: position.PendingRewards},
		{Path: panelPath + ".lastRefresh", Value: time.Now().UnixMilli()},
		{Path: panelPath + ".lastRefreshError", Value: ""},
	})

	go c.refreshLoop(gen, stop)
	c.logger.Info("staking panel mounted",
		zap.String("pair", pair.Name),
		zap.String("lp_token", lpToken.Hex()),
	)
	return nil
}

// Unmount stops the refresh loop and invalidates in-flight work.
func (c *Controller) Unmount() {
	c.generation.Add(1)
	c.mu.Lock()
	if c.stopRefresh != nil {
		close(c.stopRefresh)
		c.stopRefresh = nil
	}
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.mu.Unlock()
}

// SetTab switches the active tab and clears the stale input.
func (c *Controller) SetTab(tab string) {
	c.store.Batch([]store.Update{
		{Path: panelPath + ".tab", Value: tab},
		{Path: panelPath + ".amount", Value: ""},
		{Path: panelPath + ".percent", Value: float64(0)},
		{Path: panelPath + ".error", Value: ""},
	})
}

// reference is the amount ceiling of the active tab: wallet balance for
// stake, staked position for unstake.
func (c *Controller) reference() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	tab, _ := c.store.Get(panelPath + ".tab").(string)
	if tab == TabUnstake {
		if c.staked == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(c.staked)
	}
	if c.balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(c.balance)
}

func (c *Controller) decimals() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.Decimals
}

// SetAmount handles a user edit of the amount field: sanitize, recompute
// the slider percentage, then validate after the debounce window.
func (c *Controller) SetAmount(raw string) {
	amount := format.SanitizeAmount(raw)
	percent := c.percentOf(amount)

	c.store.Batch([]store.Update{
		{Path: panelPath + ".amount", Value: amount},
		{Path: panelPath + ".percent", Value: percent},
	})

	gen := c.generation.Load()
	c.mu.Lock()
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.debounce, func() {
		if c.generation.Load() != gen {
			return
		}
		c.validateToStore(amount)
	})
	c.mu.Unlock()
}

// SetPercent handles a slider move: derive the amount from the reference,
// render it with at most six fractional digits, and skip error emission
// unless the derived amount exceeds the reference.
func (c *Controller) SetPercent(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	ref := c.reference()
	decimals := c.decimals()

	frac := int(decimals)
	if frac > sliderFracDigits {
		frac = sliderFracDigits
	}
	refRat := new(big.Rat).SetFrac(ref, pow10Int(int(decimals)))
	pRat := new(big.Rat)
	pRat.SetFloat64(p)
	amountRat := new(big.Rat).Mul(refRat, new(big.Rat).Quo(pRat, big.NewRat(100, 1)))
	amount := trimAmount(amountRat.FloatString(frac))

	updates := []store.Update{
		{Path: panelPath + ".amount", Value: amount},
		{Path: panelPath + ".percent", Value: p},
	}
	if amountRat.Cmp(refRat) > 0 {
		updates = append(updates, store.Update{Path: panelPath + ".error", Value: "amount exceeds available balance"})
	} else {
		updates = append(updates, store.Update{Path: panelPath + ".error", Value: ""})
	}
	c.store.Batch(updates)
}

// percentOf maps an amount string to min(100, 100*amount/reference).
func (c *Controller) percentOf(amount string) float64 {
	if amount == "" {
		return 0
	}
	raw, err := format.ParseAmount(amount, c.decimals())
	if err != nil || raw.Sign() <= 0 {
		return 0
	}
	ref := c.reference()
	if ref.Sign() <= 0 {
		return 100
	}
	pct, _ := new(big.Rat).SetFrac(new(big.Int).Mul(raw, big.NewInt(100)), ref).Float64()
	if pct > 100 {
		return 100
	}
	return pct
}

func (c *Controller) validateToStore(amount string) {
	tab, _ := c.store.Get(panelPath + ".tab").(string)
	var err error
	if tab == TabUnstake {
		err = c.ValidateUnstake(amount)
	} else {
		err = c.ValidateStake(amount)
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.store.Set(panelPath+".error", msg)
}

// ValidateStake checks an amount against the stake rules: non-empty,
// parseable, positive, at least 0.0001, within balance, within token
// decimals, and the pair still carries weight.
func (c *Controller) ValidateStake(amount string) error {
	c.mu.Lock()
	balance := c.balance
	decimals := c.token.Decimals
	weight := c.pair.Weight
	c.mu.Unlock()

	raw, err := c.validateCommon(amount, decimals)
	if err != nil {
		return err
	}
	if balance == nil || raw.Cmp(balance) > 0 {
		return &ValidationError{Msg: "insufficient balance"}
	}
	if weight == 0 {
		return &ValidationError{Msg: "pair is not active for staking"}
	}
	return nil
}

// ValidateUnstake checks an amount against the staked position.
func (c *Controller) ValidateUnstake(amount string) error {
	c.mu.Lock()
	staked := c.staked
	decimals := c.token.Decimals
	c.mu.Unlock()

	raw, err := c.validateCommon(amount, decimals)
	if err != nil {
		return err
	}
	if staked == nil || raw.Cmp(staked) > 0 {
		return &ValidationError{Msg: "insufficient staked balance"}
	}
	return nil
}

func (c *Controller) validateCommon(amount string, decimals uint8) (*big.Int, error) {
	if amount == "" {
		return nil, &ValidationError{Msg: "enter an amount"}
	}
	if format.FractionalDigits(amount) > int(decimals) {
		return nil, &ValidationError{Msg: "too many decimal places"}
	}
	raw, err := format.ParseAmount(amount, decimals)
	if err != nil {
		return nil, &ValidationError{Msg: "invalid amount"}
	}
	if raw.Sign() <= 0 {
		return nil, &ValidationError{Msg: "amount must be positive"}
	}
	// minimum 0.0001 token: raw * 10^4 >= 10^decimals
	min := new(big.Int).Mul(raw, big.NewInt(10000))
	if min.Cmp(pow10Int(int(decimals))) < 0 {
		return nil, &ValidationError{Msg: "minimum amount is 0.0001"}
	}
	return raw, nil
}

// Stake validates, ensures the allowance, and runs the stake write. The
// loading flag clears on every exit path.
func (c *Controller) Stake(ctx context.Context) error {
	amount, _ := c.store.Get(panelPath + ".amount").(string)
	if err := c.ValidateStake(amount); err != nil {
		c.store.Set(panelPath+".error", err.Error())
		return err
	}

	c.mu.Lock()
	user := c.user
	lpToken := c.lpToken
	decimals := c.token.Decimals
	c.mu.Unlock()

	raw, err := format.ParseAmount(amount, decimals)
	if err != nil {
		return &ValidationError{Msg: "invalid amount"}
	}

	c.store.Set(panelPath+".loading.stake", true)
	defer c.store.Set(panelPath+".loading.stake", false)

	spender := c.gateway.StakingAddress()
	allowance, err := c.gateway.Allowance(ctx, lpToken, user, spender)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.Cmp(raw) < 0 {
		c.store.Set(panelPath+".loading.approve", true)
		_, err := c.gateway.Approve(ctx, lpToken, spender, raw)
		c.store.Set(panelPath+".loading.approve", false)
		if err != nil {
			return fmt.Errorf("approve: %w", err)
		}
	}

	if _, err := c.gateway.Stake(ctx, lpToken, raw); err != nil {
		return fmt.Errorf("stake: %w", err)
	}

	c.store.Batch([]store.Update{
		{Path: panelPath + ".amount", Value: ""},
		{Path: panelPath + ".percent", Value: float64(0)},
		{Path: panelPath + ".error", Value: ""},
	})
	return c.Refresh(ctx)
}

// Unstake validates and runs the unstake write.
func (c *Controller) Unstake(ctx context.Context) error {
	amount, _ := c.store.Get(panelPath + ".amount").(string)
	if err := c.ValidateUnstake(amount); err != nil {
		c.store.Set(panelPath+".error", err.Error())
		return err
	}

	c.mu.Lock()
	lpToken := c.lpToken
	decimals := c.token.Decimals
	c.mu.Unlock()

	raw, err := format.ParseAmount(amount, decimals)
	if err != nil {
		return &ValidationError{Msg: "invalid amount"}
	}

	c.store.Set(panelPath+".loading.unstake", true)
	defer c.store.Set(panelPath+".loading.unstake", false)

	if _, err := c.gateway.Unstake(ctx, lpToken, raw); err != nil {
		return fmt.Errorf("unstake: %w", err)
	}

	c.store.Batch([]store.Update{
		{Path: panelPath + ".amount", Value: ""},
		{Path: panelPath + ".percent", Value: float64(0)},
		{Path: panelPath + ".error", Value: ""},
	})
	return c.Refresh(ctx)
}

// Claim pays out pending rewards for the mounted pair.
func (c *Controller) Claim(ctx context.Context) error {
	c.mu.Lock()
	lpToken := c.lpToken
	c.mu.Unlock()

	c.store.Set(panelPath+".loading.claim", true)
	defer c.store.Set(panelPath+".loading.claim", false)

	if _, err := c.gateway.ClaimRewards(ctx, lpToken); err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	return c.Refresh(ctx)
}

// Refresh polls balance and position in parallel and applies only changes
// that exceed the epsilon.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	user := c.user
	lpToken := c.lpToken
	c.mu.Unlock()

	var (
		wg       sync.WaitGroup
		balance  *big.Int
		position model.UserStake
		balErr   error
		posErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		balance, balErr = c.gateway.BalanceOf(ctx, lpToken, user)
	}()
	go func() {
		defer wg.Done()
		position, posErr = c.gateway.GetUserStakeInfo(ctx, user, lpToken)
	}()
	wg.Wait()

	if balErr != nil || posErr != nil {
		err := balErr
		if err == nil {
			err = posErr
		}
		c.store.Set(panelPath+".lastRefreshError", err.Error())
		c.logger.Warn("refresh failed", zap.Error(err))
		return err
	}

	var updates []store.Update
	c.mu.Lock()
	if exceedsEpsilon(c.balance, balance, c.epsilon) {
		c.balance = balance
		updates = append(updates, store.Update{Path: panelPath + ".balance", Value: balance})
	}
	if exceedsEpsilon(c.staked, position.Amount, c.epsilon) {
		c.staked = position.Amount
		updates = append(updates, store.Update{Path: panelPath + ".staked", Value: position.Amount})
	}
	c.mu.Unlock()

	prev, _ := c.store.Get(panelPath + ".pendingRewards").(*big.Int)
	if exceedsEpsilon(prev, position.PendingRewards, c.epsilon) {
		updates = append(updates, store.Update{Path: panelPath + ".pendingRewards", Value: position.PendingRewards})
	}

	updates = append(updates,
		store.Update{Path: panelPath + ".lastRefresh", Value: time.Now().UnixMilli()},
		store.Update{Path: panelPath + ".lastRefreshError", Value: ""},
	)
	c.store.Batch(updates)
	return nil
}

func (c *Controller) refreshLoop(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if c.generation.Load() != gen {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.refresh)
		_ = c.Refresh(ctx)
		cancel()
	}
}

// exceedsEpsilon reports whether the delta between the previous and next
// value is worth a store write.
func exceedsEpsilon(prev, next, epsilon *big.Int) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return true
	}
	delta := new(big.Int).Sub(next, prev)
	return delta.Abs(delta).Cmp(epsilon) > 0
}

func trimAmount(s string) string {
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	if s == "" {
		s = "0"
	}
	return s
}

func pow10Int(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
