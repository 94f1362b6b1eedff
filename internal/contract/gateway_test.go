package contract

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"stakedesk/internal/model"
	"stakedesk/internal/provider"
	"stakedesk/internal/provider/providertest"
)

var (
	stakingAddr = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	lpAddr      = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	userAddr    = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
)

func newTestGateway(fake *providertest.Fake, opts Options) *Gateway {
	g := NewGateway(stakingAddr, nil, opts)
	g.Rebind(fake, userAddr)
	return g
}

func packStakingOutputs(t *testing.T, method string, values ...any) []byte {
	t.Helper()
	parsed, err := stakingABIInstance()
	if err != nil {
		t.Fatalf("parse staking abi: %v", err)
	}
	data, err := parsed.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return data
}

func packERC20Outputs(t *testing.T, method string, values ...any) []byte {
	t.Helper()
	parsed, err := erc20ABIInstance()
	if err != nil {
		t.Fatalf("parse erc20 abi: %v", err)
	}
	data, err := parsed.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return data
}

// dispatch answers eth_call by method selector from the given responses.
func dispatch(t *testing.T, responses map[string][]byte) func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	t.Helper()
	staking, err := stakingABIInstance()
	if err != nil {
		t.Fatalf("parse staking abi: %v", err)
	}
	erc20, err := erc20ABIInstance()
	if err != nil {
		t.Fatalf("parse erc20 abi: %v", err)
	}
	bySelector := make(map[[4]byte][]byte, len(responses))
	for name, data := range responses {
		var id []byte
		if m, ok := staking.Methods[name]; ok {
			id = m.ID
		} else if m, ok := erc20.Methods[name]; ok {
			id = m.ID
		} else {
			t.Fatalf("unknown method %q", name)
		}
		bySelector[[4]byte(id)] = data
	}
	return func(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		if len(msg.Data) < 4 {
			return nil, fmt.Errorf("short calldata")
		}
		data, ok := bySelector[[4]byte(msg.Data[:4])]
		if !ok {
			return nil, fmt.Errorf("unexpected call %x", msg.Data[:4])
		}
		return data, nil
	}
}

func TestStakePipelineOrder(t *testing.T) {
	fake := providertest.New()
	g := newTestGateway(fake, Options{})

	if _, err := g.Stake(context.Background(), lpAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	want := []string{"eth_call", "eth_estimateGas", "eth_sendTransaction", "eth_getTransactionReceipt"}
	if got := fake.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("pipeline order mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestStakeRevertSkipsSend(t *testing.T) {
	fake := providertest.New()
	fake.CallContractFn = func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, fmt.Errorf("execution reverted: pair not active")
	}
	g := newTestGateway(fake, Options{})

	if _, err := g.Stake(context.Background(), lpAddr, big.NewInt(1000)); err == nil {
		t.Fatalf("expected revert error")
	}
	if fake.CallCount("eth_estimateGas") != 0 || fake.CallCount("eth_sendTransaction") != 0 {
		t.Fatalf("revert must stop before estimate and send: %v", fake.Calls())
	}
}

func TestWriteAppliesGasMargin(t *testing.T) {
	fake := providertest.New()
	fake.EstimateGasFn = func(context.Context, ethereum.CallMsg) (uint64, error) { return 100000, nil }
	var sentGas uint64
	fake.SendTransactionFn = func(_ context.Context, msg ethereum.CallMsg) (common.Hash, error) {
		sentGas = msg.Gas
		return common.HexToHash("0x01"), nil
	}
	g := newTestGateway(fake, Options{})

	if _, err := g.Unstake(context.Background(), lpAddr, big.NewInt(1)); err != nil {
		t.Fatalf("unstake failed: %v", err)
	}
	if sentGas != 120000 {
		t.Fatalf("gas margin mismatch: got %d want 120000", sentGas)
	}
}

func TestUnboundGatewayFails(t *testing.T) {
	g := NewGateway(stakingAddr, nil, Options{})
	if _, err := g.HourlyRewardRate(context.Background()); err == nil {
		t.Fatalf("unbound gateway must fail reads")
	}
	if _, err := g.Stake(context.Background(), lpAddr, big.NewInt(1)); err == nil {
		t.Fatalf("unbound gateway must fail writes")
	}
}

func TestGetPairsDecodes(t *testing.T) {
	records := []pairRecord{
		{LpToken: lpAddr, Name: "CAKE-BNB", Platform: "pancake", Weight: big.NewInt(40), IsActive: true},
		{LpToken: userAddr, Name: "BUSD-BNB", Platform: "pancake", Weight: big.NewInt(10), IsActive: false},
	}
	fake := providertest.New()
	fake.CallContractFn = dispatch(t, map[string][]byte{
		"getPairs": packStakingOutputs(t, "getPairs", records),
	})
	g := newTestGateway(fake, Options{})

	pairs, err := g.GetPairs(context.Background())
	if err != nil {
		t.Fatalf("getPairs failed: %v", err)
	}
	want := []model.Pair{
		{LPToken: lpAddr.Hex(), Name: "CAKE-BNB", Platform: "pancake", Weight: 40, IsActive: true},
		{LPToken: userAddr.Hex(), Name: "BUSD-BNB", Platform: "pancake", Weight: 10, IsActive: false},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Fatalf("pairs mismatch:\n got %+v\nwant %+v", pairs, want)
	}
}

func TestGetUserStakeInfoDecodes(t *testing.T) {
	fake := providertest.New()
	fake.CallContractFn = dispatch(t, map[string][]byte{
		"getUserStakeInfo": packStakingOutputs(t, "getUserStakeInfo",
			big.NewInt(5000), big.NewInt(120), big.NewInt(1700000000)),
	})
	g := newTestGateway(fake, Options{})

	stake, err := g.GetUserStakeInfo(context.Background(), userAddr, lpAddr)
	if err != nil {
		t.Fatalf("getUserStakeInfo failed: %v", err)
	}
	if stake.Amount.Int64() != 5000 || stake.PendingRewards.Int64() != 120 || stake.LastRewardTime != 1700000000 {
		t.Fatalf("stake mismatch: %+v", stake)
	}
	if stake.User != userAddr.Hex() || stake.LPToken != lpAddr.Hex() {
		t.Fatalf("identity mismatch: %+v", stake)
	}
}

func packedAction(t *testing.T, kind model.ActionKind, mutate func(values []any)) []byte {
	t.Helper()
	out := []any{
		uint8(kind),
		userAddr,
		big.NewInt(1700000000),
		big.NewInt(2),
		false, false, false,
		big.NewInt(0),
		[]common.Address{},
		[]*big.Int{},
		common.Address{},
		"", "",
		big.NewInt(0),
		common.Address{},
		common.Address{},
		common.Address{},
		common.Address{},
		big.NewInt(0),
	}
	if mutate != nil {
		mutate(out)
	}
	return packStakingOutputs(t, "actions", out...)
}

func TestActionDecodeAddPair(t *testing.T) {
	fake := providertest.New()
	fake.CallContractFn = dispatch(t, map[string][]byte{
		"actions": packedAction(t, model.ActionAddPair, func(out []any) {
			out[10] = lpAddr
			out[11] = "CAKE-BNB"
			out[12] = "pancake"
			out[13] = big.NewInt(25)
		}),
	})
	g := newTestGateway(fake, Options{})

	action, err := g.Action(context.Background(), 3)
	if err != nil {
		t.Fatalf("action read failed: %v", err)
	}
	if action.ID != 3 || action.Kind != model.ActionAddPair {
		t.Fatalf("header mismatch: %+v", action)
	}
	if action.Proposer != userAddr.Hex() || action.ProposedAt != 1700000000 || action.Approvals != 2 {
		t.Fatalf("header mismatch: %+v", action)
	}
	p := action.Payload
	if p.PairToAdd != lpAddr.Hex() || p.PairNameToAdd != "CAKE-BNB" || p.PlatformToAdd != "pancake" || p.WeightToAdd.Int64() != 25 {
		t.Fatalf("payload mismatch: %+v", p)
	}
	// fields of other kinds stay empty
	if p.NewHourlyRewardRate != nil || p.Recipient != "" || len(p.Pairs) != 0 {
		t.Fatalf("unrelated payload fields populated: %+v", p)
	}
}

func TestActionDecodeUpdateWeights(t *testing.T) {
	fake := providertest.New()
	fake.CallContractFn = dispatch(t, map[string][]byte{
		"actions": packedAction(t, model.ActionUpdatePairWeights, func(out []any) {
			out[8] = []common.Address{lpAddr, userAddr}
			out[9] = []*big.Int{big.NewInt(30), big.NewInt(70)}
		}),
	})
	g := newTestGateway(fake, Options{})

	action, err := g.Action(context.Background(), 0)
	if err != nil {
		t.Fatalf("action read failed: %v", err)
	}
	if !reflect.DeepEqual(action.Payload.Pairs, []string{lpAddr.Hex(), userAddr.Hex()}) {
		t.Fatalf("pairs mismatch: %+v", action.Payload.Pairs)
	}
	if len(action.Payload.Weights) != 2 || action.Payload.Weights[1].Int64() != 70 {
		t.Fatalf("weights mismatch: %+v", action.Payload.Weights)
	}
}

func TestTokenInfoCached(t *testing.T) {
	fake := providertest.New()
	fake.CallContractFn = dispatch(t, map[string][]byte{
		"decimals": packERC20Outputs(t, "decimals", uint8(18)),
		"symbol":   packERC20Outputs(t, "symbol", "CAKE-LP"),
		"name":     packERC20Outputs(t, "name", "Pancake LP"),
	})
	g := newTestGateway(fake, Options{})

	info, err := g.TokenInfo(context.Background(), lpAddr)
	if err != nil {
		t.Fatalf("tokenInfo failed: %v", err)
	}
	want := model.TokenInfo{Address: lpAddr.Hex(), Decimals: 18, Symbol: "CAKE-LP", Name: "Pancake LP"}
	if info != want {
		t.Fatalf("info mismatch: %+v", info)
	}

	calls := fake.CallCount("eth_call")
	if _, err := g.TokenInfo(context.Background(), lpAddr); err != nil {
		t.Fatalf("second tokenInfo failed: %v", err)
	}
	if fake.CallCount("eth_call") != calls {
		t.Fatalf("cached token must not hit the chain again")
	}
}

func TestIsAdminDevAllowlist(t *testing.T) {
	fake := providertest.New()
	g := newTestGateway(fake, Options{Development: true, DevAdmins: []common.Address{userAddr}})

	ok, err := g.IsAdmin(context.Background(), userAddr)
	if err != nil || !ok {
		t.Fatalf("allowlisted account should be admin (ok=%v err=%v)", ok, err)
	}
	if fake.CallCount("eth_call") != 0 {
		t.Fatalf("allowlist answer must not touch the chain")
	}
}

func TestIsAdminOnChain(t *testing.T) {
	role := [32]byte{0xAB}
	fake := providertest.New()
	fake.CallContractFn = dispatch(t, map[string][]byte{
		"ADMIN_ROLE": packStakingOutputs(t, "ADMIN_ROLE", role),
		"hasRole":    packStakingOutputs(t, "hasRole", true),
	})
	g := newTestGateway(fake, Options{})

	ok, err := g.IsAdmin(context.Background(), userAddr)
	if err != nil || !ok {
		t.Fatalf("expected admin (ok=%v err=%v)", ok, err)
	}

	// the role hash is cached after the first read
	calls := fake.CallCount("eth_call")
	if _, err := g.IsAdmin(context.Background(), userAddr); err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if fake.CallCount("eth_call") != calls+1 {
		t.Fatalf("expected only the hasRole call on repeat, got %v", fake.Calls())
	}
}

func TestReadRetriesTransientFailure(t *testing.T) {
	respond := dispatch(t, map[string][]byte{
		"hourlyRewardRate": packStakingOutputs(t, "hourlyRewardRate", big.NewInt(7)),
	})
	attempts := 0
	fake := providertest.New()
	fake.CallContractFn = func(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, fmt.Errorf("connection reset")
		}
		return respond(ctx, msg, block)
	}
	g := newTestGateway(fake, Options{})

	rate, err := g.HourlyRewardRate(context.Background())
	if err != nil {
		t.Fatalf("read failed after retry: %v", err)
	}
	if rate.Int64() != 7 {
		t.Fatalf("rate mismatch: %v", rate)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry, got %d attempts", attempts)
	}
}

func TestReadDoesNotRetryCodedErrors(t *testing.T) {
	attempts := 0
	fake := providertest.New()
	fake.CallContractFn = func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		attempts++
		return nil, &provider.RPCError{Code: 4001, Message: "User rejected the request."}
	}
	g := newTestGateway(fake, Options{})

	if _, err := g.HourlyRewardRate(context.Background()); err == nil {
		t.Fatalf("expected coded error")
	}
	if attempts != 1 {
		t.Fatalf("coded errors must not be retried, got %d attempts", attempts)
	}
}
