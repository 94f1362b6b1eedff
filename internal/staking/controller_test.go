package staking

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"stakedesk/internal/model"
	"stakedesk/internal/store"
)

var (
	testStaking = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	testLP      = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	testUser    = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
)

// fakeGateway implements Gateway in memory and records write calls.
type fakeGateway struct {
	mu        sync.Mutex
	pair      model.Pair
	token     model.TokenInfo
	balance   *big.Int
	staked    *big.Int
	pending   *big.Int
	allowance *big.Int

	calls        []string
	stakedAmount *big.Int
	approved     *big.Int
	writeErr     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		pair:      model.Pair{LPToken: testLP.Hex(), Name: "CAKE-BNB", Platform: "pancake", Weight: 40, IsActive: true},
		token:     model.TokenInfo{Address: testLP.Hex(), Decimals: 6, Symbol: "CAKE-LP", Name: "Pancake LP"},
		balance:   big.NewInt(12567800), // 12.5678 at 6 decimals
		staked:    big.NewInt(5000000),
		pending:   big.NewInt(120000),
		allowance: big.NewInt(0),
	}
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeGateway) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeGateway) StakingAddress() common.Address { return testStaking }

func (f *fakeGateway) PairInfo(context.Context, common.Address) (model.Pair, error) {
	f.record("pairInfo")
	return f.pair, nil
}

func (f *fakeGateway) TokenInfo(context.Context, common.Address) (model.TokenInfo, error) {
	f.record("tokenInfo")
	return f.token, nil
}

func (f *fakeGateway) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	f.record("balanceOf")
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeGateway) GetUserStakeInfo(context.Context, common.Address, common.Address) (model.UserStake, error) {
	f.record("getUserStakeInfo")
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.UserStake{
		User:           testUser.Hex(),
		LPToken:        testLP.Hex(),
		Amount:         new(big.Int).Set(f.staked),
		PendingRewards: new(big.Int).Set(f.pending),
	}, nil
}

func (f *fakeGateway) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	f.record("allowance")
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeGateway) Approve(_ context.Context, _, _ common.Address, amount *big.Int) (*types.Receipt, error) {
	f.record("approve")
	f.mu.Lock()
	f.approved = new(big.Int).Set(amount)
	f.allowance = new(big.Int).Set(amount)
	f.mu.Unlock()
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeGateway) Stake(_ context.Context, _ common.Address, amount *big.Int) (*types.Receipt, error) {
	f.record("stake")
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.mu.Lock()
	f.stakedAmount = new(big.Int).Set(amount)
	f.mu.Unlock()
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeGateway) Unstake(_ context.Context, _ common.Address, amount *big.Int) (*types.Receipt, error) {
	f.record("unstake")
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeGateway) ClaimRewards(context.Context, common.Address) (*types.Receipt, error) {
	f.record("claim")
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func mountedController(t *testing.T, fake *fakeGateway, opts Options) (*Controller, *store.Store) {
	t.Helper()
	st := store.New(nil)
	c := NewController(st, fake, nil, opts)
	if err := c.Mount(context.Background(), testUser, testLP); err != nil {
		t.Fatalf("mount failed: %v", err)
	}
	t.Cleanup(c.Unmount)
	return c, st
}

func TestSliderFullBalance(t *testing.T) {
	c, st := mountedController(t, newFakeGateway(), Options{})

	c.SetPercent(100)

	if got := st.Get(panelPath + ".amount"); got != "12.5678" {
		t.Fatalf("amount mismatch: %v", got)
	}
	if err := c.ValidateStake("12.5678"); err != nil {
		t.Fatalf("full balance must validate: %v", err)
	}
}

func TestSliderCapsFractionalDigits(t *testing.T) {
	fake := newFakeGateway()
	fake.token.Decimals = 18
	fake.balance = big.NewInt(0).Mul(big.NewInt(1), pow10Int(18)) // 1.0
	c, st := mountedController(t, fake, Options{})

	c.SetPercent(33)

	amount, _ := st.Get(panelPath + ".amount").(string)
	if amount != "0.33" {
		t.Fatalf("slider amount mismatch: %q", amount)
	}
}

func TestSetAmountSanitizes(t *testing.T) {
	c, st := mountedController(t, newFakeGateway(), Options{Debounce: 10 * time.Millisecond})

	c.SetAmount("00012.34500")

	if got := st.Get(panelPath + ".amount"); got != "12.345" {
		t.Fatalf("sanitize mismatch: %v", got)
	}
	time.Sleep(60 * time.Millisecond)
	if got := st.Get(panelPath + ".error"); got != "" {
		t.Fatalf("valid input should leave no error: %v", got)
	}
}

func TestSetAmountDebouncesValidation(t *testing.T) {
	c, st := mountedController(t, newFakeGateway(), Options{Debounce: 40 * time.Millisecond})

	c.SetAmount("99999") // exceeds balance

	if got := st.Get(panelPath + ".error"); got != "" && got != nil {
		t.Fatalf("error must not appear before the debounce window: %v", got)
	}
	time.Sleep(100 * time.Millisecond)
	if got := st.Get(panelPath + ".error"); got != "insufficient balance" {
		t.Fatalf("debounced validation missing: %v", got)
	}
}

func TestValidateStakeRules(t *testing.T) {
	fake := newFakeGateway()
	c, _ := mountedController(t, fake, Options{})

	cases := []struct {
		amount  string
		wantErr string
	}{
		{"", "enter an amount"},
		{"abc", "invalid amount"},
		{"0", "amount must be positive"},
		{"0.00005", "minimum amount is 0.0001"},
		{"0.0001", ""},
		{"12.5678", ""},
		{"12.5679", "insufficient balance"},
		{"0.1234567", "too many decimal places"},
	}
	for _, tc := range cases {
		err := c.ValidateStake(tc.amount)
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.amount, err)
			}
			continue
		}
		if err == nil || err.Error() != tc.wantErr {
			t.Fatalf("%q: got %v, want %q", tc.amount, err, tc.wantErr)
		}
	}
}

func TestValidateStakeZeroWeight(t *testing.T) {
	fake := newFakeGateway()
	fake.pair.Weight = 0
	c, _ := mountedController(t, fake, Options{})

	err := c.ValidateStake("1")
	if err == nil || err.Error() != "pair is not active for staking" {
		t.Fatalf("zero weight must fail validation: %v", err)
	}
}

func TestValidateUnstakeAgainstStaked(t *testing.T) {
	c, _ := mountedController(t, newFakeGateway(), Options{})

	if err := c.ValidateUnstake("5"); err != nil {
		t.Fatalf("within staked must pass: %v", err)
	}
	err := c.ValidateUnstake("5.000001")
	if err == nil || err.Error() != "insufficient staked balance" {
		t.Fatalf("above staked must fail: %v", err)
	}
}

func TestStakeApprovesWhenAllowanceShort(t *testing.T) {
	fake := newFakeGateway()
	c, st := mountedController(t, fake, Options{})

	c.SetPercent(100)
	if err := c.Stake(context.Background()); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	sawApprove := false
	for _, call := range fake.callNames() {
		if call == "approve" {
			sawApprove = true
		}
		if call == "stake" && !sawApprove {
			t.Fatalf("stake ran before approve: %v", fake.callNames())
		}
	}
	if !sawApprove {
		t.Fatalf("expected an approve call: %v", fake.callNames())
	}
	if fake.stakedAmount.Cmp(big.NewInt(12567800)) != 0 {
		t.Fatalf("wire amount mismatch: %s", fake.stakedAmount)
	}
	if got := st.Get(panelPath + ".amount"); got != "" {
		t.Fatalf("amount should reset after stake: %v", got)
	}
}

func TestStakeSkipsApproveWhenAllowanceCovers(t *testing.T) {
	fake := newFakeGateway()
	fake.allowance = big.NewInt(99999999)
	c, _ := mountedController(t, fake, Options{})

	c.SetAmount("1.5")
	if err := c.Stake(context.Background()); err != nil {
		t.Fatalf("stake failed: %v", err)
	}
	for _, call := range fake.callNames() {
		if call == "approve" {
			t.Fatalf("approve should be skipped: %v", fake.callNames())
		}
	}
	if fake.stakedAmount.Cmp(big.NewInt(1500000)) != 0 {
		t.Fatalf("wire amount mismatch: %s", fake.stakedAmount)
	}
}

func TestStakeFailureClearsLoading(t *testing.T) {
	fake := newFakeGateway()
	fake.allowance = big.NewInt(99999999)
	fake.writeErr = context.DeadlineExceeded
	c, st := mountedController(t, fake, Options{})

	c.SetAmount("1")
	if err := c.Stake(context.Background()); err == nil {
		t.Fatalf("expected stake failure")
	}
	if got := st.Get(panelPath + ".loading.stake"); got != false {
		t.Fatalf("loading flag must clear on failure: %v", got)
	}
}

func TestRefreshSuppressesUnchangedValues(t *testing.T) {
	fake := newFakeGateway()
	c, st := mountedController(t, fake, Options{})

	notified := 0
	st.Subscribe(panelPath+".balance", func(string, any) { notified++ })

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if notified != 0 {
		t.Fatalf("unchanged balance must not notify, got %d", notified)
	}

	fake.mu.Lock()
	fake.balance = big.NewInt(99999999)
	fake.mu.Unlock()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if notified != 1 {
		t.Fatalf("changed balance must notify once, got %d", notified)
	}
}

func TestRefreshRecordsError(t *testing.T) {
	fake := newFakeGateway()
	c, st := mountedController(t, fake, Options{})

	fake.writeErr = nil
	// balance read failure
	bad := &failingGateway{fakeGateway: fake}
	c.gateway = bad

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if got, _ := st.Get(panelPath + ".lastRefreshError").(string); got == "" {
		t.Fatalf("refresh error must be recorded")
	}
}

type failingGateway struct {
	*fakeGateway
}

func (f *failingGateway) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return nil, context.DeadlineExceeded
}

func TestUnmountStopsRefreshLoop(t *testing.T) {
	fake := newFakeGateway()
	c, _ := mountedController(t, fake, Options{RefreshInterval: 20 * time.Millisecond})

	time.Sleep(50 * time.Millisecond)
	c.Unmount()
	settled := len(fake.callNames())
	time.Sleep(80 * time.Millisecond)
	if got := len(fake.callNames()); got != settled {
		t.Fatalf("refresh loop kept polling after unmount: %d -> %d", settled, got)
	}
}
