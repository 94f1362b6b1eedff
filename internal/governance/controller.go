package governance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"stakedesk/internal/format"
	"stakedesk/internal/model"
	"stakedesk/internal/store"
)

// ExpiryWindow is how long an action stays executable after proposal,
// independent of the contract's own expired flag.
const ExpiryWindow = 7 * 24 * time.Hour

// maxActionScan bounds enumeration when the contract exposes no count.
const maxActionScan = 256

// Reason names the first failing readiness clause.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonExecuted              Reason = "executed"
	ReasonRejected              Reason = "rejected"
	ReasonExpiredFlag           Reason = "expired"
	ReasonExpiredByTime         Reason = "expired-by-time"
	ReasonInsufficientApprovals Reason = "insufficient-approvals"
	ReasonNotAdmin              Reason = "not-admin"
)

// Readiness is the derived execution state of one action. It is computed
// on demand and never stored.
type Readiness struct {
	Executable bool
	Reason     Reason
}

// DeriveReadiness evaluates the readiness clauses in their fixed order and
// reports the first failing one.
func DeriveReadiness(a model.GovernanceAction, required uint64, now time.Time, isAdmin bool) Readiness {
	switch {
	case a.Executed:
		return Readiness{Reason: ReasonExecuted}
	case a.Rejected:
		return Readiness{Reason: ReasonRejected}
	case a.ExpiredFlag:
		return Readiness{Reason: ReasonExpiredFlag}
	case now.After(time.Unix(int64(a.ProposedAt), 0).Add(ExpiryWindow)):
		return Readiness{Reason: ReasonExpiredByTime}
	case a.Approvals < required:
		return Readiness{Reason: ReasonInsufficientApprovals}
	case !isAdmin:
		return Readiness{Reason: ReasonNotAdmin}
	}
	return Readiness{Executable: true}
}

// Gateway is the slice of the contract surface this controller needs.
// *contract.Gateway satisfies it.
type Gateway interface {
	Action(ctx context.Context, id uint64) (model.GovernanceAction, error)
	ActionCount(ctx context.Context) (uint64, error)
	RequiredApprovals(ctx context.Context) (uint64, error)
	IsAdmin(ctx context.Context, account common.Address) (bool, error)
	ExecuteAction(ctx context.Context, id uint64) (*types.Receipt, error)
	HourlyRewardRate(ctx context.Context) (*big.Int, error)
	PairInfo(ctx context.Context, lpToken common.Address) (model.Pair, error)
	RewardToken(ctx context.Context) (common.Address, error)
	TokenInfo(ctx context.Context, token common.Address) (model.TokenInfo, error)
}

// ActionView is one action plus its derived state and rendered summary.
type ActionView struct {
	Action    model.GovernanceAction
	Readiness Readiness
	Summary   string
}

type Options struct {
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Controller enumerates multi-sig actions, derives their readiness, and
// drives execution through the gateway's send pipeline.
type Controller struct {
	store   *store.Store
	gateway Gateway
	logger  *zap.Logger
	now     func() time.Time
}

func NewController(st *store.Store, gw Gateway, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{store: st, gateway: gw, logger: logger, now: now}
}

// List enumerates every known action for caller and publishes the views
// under governance.actions.
func (c *Controller) List(ctx context.Context, caller common.Address) ([]ActionView, error) {
	required, err := c.gateway.RequiredApprovals(ctx)
	if err != nil {
		return nil, fmt.Errorf("read required approvals: %w", err)
	}
	isAdmin, err := c.gateway.IsAdmin(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("check admin role: %w", err)
	}

	actions, err := c.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	views := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		summary, err := c.Summary(ctx, a)
		if err != nil {
			c.logger.Warn("summary failed", zap.Uint64("action", a.ID), zap.Error(err))
			summary = a.Kind.String()
		}
		views = append(views, ActionView{
			Action:    a,
			Readiness: DeriveReadiness(a, required, now, isAdmin),
			Summary:   summary,
		})
	}

	c.store.Batch([]store.Update{
		{Path: "governance.actions", Value: views},
		{Path: "governance.requiredApprovals", Value: required},
		{Path: "governance.isAdmin", Value: isAdmin},
	})
	return views, nil
}

// enumerate walks the actions mapping. Contracts without a count getter
// are scanned until the first empty slot, capped at maxActionScan.
func (c *Controller) enumerate(ctx context.Context) ([]model.GovernanceAction, error) {
	if count, err := c.gateway.ActionCount(ctx); err == nil {
		actions := make([]model.GovernanceAction, 0, count)
		for id := uint64(0); id < count; id++ {
			a, err := c.gateway.Action(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("read action %d: %w", id, err)
			}
			actions = append(actions, a)
		}
		return actions, nil
	}

	var actions []model.GovernanceAction
	for id := uint64(0); id < maxActionScan; id++ {
		a, err := c.gateway.Action(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read action %d: %w", id, err)
		}
		if a.ProposedAt == 0 {
			break
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// Readiness re-reads one action and derives its current state for caller.
func (c *Controller) Readiness(ctx context.Context, caller common.Address, id uint64) (model.GovernanceAction, Readiness, error) {
	a, err := c.gateway.Action(ctx, id)
	if err != nil {
		return model.GovernanceAction{}, Readiness{}, fmt.Errorf("read action %d: %w", id, err)
	}
	required, err := c.gateway.RequiredApprovals(ctx)
	if err != nil {
		return model.GovernanceAction{}, Readiness{}, fmt.Errorf("read required approvals: %w", err)
	}
	isAdmin, err := c.gateway.IsAdmin(ctx, caller)
	if err != nil {
		return model.GovernanceAction{}, Readiness{}, fmt.Errorf("check admin role: %w", err)
	}
	return a, DeriveReadiness(a, required, c.now(), isAdmin), nil
}

// Execute runs an action after a fresh readiness check, then re-reads the
// record. The store is only updated from the re-read, never optimistically.
func (c *Controller) Execute(ctx context.Context, caller common.Address, id uint64) (model.GovernanceAction, error) {
	_, readiness, err := c.Readiness(ctx, caller, id)
	if err != nil {
		return model.GovernanceAction{}, err
	}
	if !readiness.Executable {
		return model.GovernanceAction{}, fmt.Errorf("action %d is not executable: %s", id, readiness.Reason)
	}

	c.store.Set("governance.executing", id)
	defer c.store.Set("governance.executing", nil)

	if _, err := c.gateway.ExecuteAction(ctx, id); err != nil {
		return model.GovernanceAction{}, fmt.Errorf("execute action %d: %w", id, err)
	}

	a, err := c.gateway.Action(ctx, id)
	if err != nil {
		return model.GovernanceAction{}, fmt.Errorf("re-read action %d: %w", id, err)
	}
	c.logger.Info("governance action executed",
		zap.Uint64("action", id),
		zap.String("kind", a.Kind.String()),
	)
	return a, nil
}

// Summary renders the kind-specific payload next to the current on-chain
// values it would change.
func (c *Controller) Summary(ctx context.Context, a model.GovernanceAction) (string, error) {
	switch a.Kind {
	case model.ActionSetHourlyRewardRate:
		current, err := c.gateway.HourlyRewardRate(ctx)
		if err != nil {
			return "", err
		}
		decimals, err := c.rewardDecimals(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("set hourly reward rate to %s (current %s)",
			format.FormatAmount(a.Payload.NewHourlyRewardRate, decimals, int(decimals)),
			format.FormatAmount(current, decimals, int(decimals)),
		), nil

	case model.ActionUpdatePairWeights:
		parts := make([]string, 0, len(a.Payload.Pairs))
		for i, pair := range a.Payload.Pairs {
			info, err := c.gateway.PairInfo(ctx, common.HexToAddress(pair))
			if err != nil {
				return "", err
			}
			newWeight := "?"
			if i < len(a.Payload.Weights) && a.Payload.Weights[i] != nil {
				newWeight = a.Payload.Weights[i].String()
			}
			parts = append(parts, fmt.Sprintf("%s %d→%s", info.Name, info.Weight, newWeight))
		}
		return "update pair weights: " + strings.Join(parts, ", "), nil

	case model.ActionAddPair:
		weight := "?"
		if a.Payload.WeightToAdd != nil {
			weight = a.Payload.WeightToAdd.String()
		}
		return fmt.Sprintf("add pair %s (%s on %s) with weight %s",
			a.Payload.PairNameToAdd,
			format.FormatAddress(a.Payload.PairToAdd),
			a.Payload.PlatformToAdd,
			weight,
		), nil

	case model.ActionRemovePair:
		info, err := c.gateway.PairInfo(ctx, common.HexToAddress(a.Payload.PairToRemove))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("remove pair %s (%s)", info.Name, format.FormatAddress(a.Payload.PairToRemove)), nil

	case model.ActionChangeSigner:
		return fmt.Sprintf("replace signer %s with %s",
			format.FormatAddress(a.Payload.SignerToRemove),
			format.FormatAddress(a.Payload.NewSigner),
		), nil

	case model.ActionWithdrawRewards:
		decimals, err := c.rewardDecimals(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("withdraw %s rewards to %s",
			format.FormatAmount(a.Payload.WithdrawAmount, decimals, int(decimals)),
			format.FormatAddress(a.Payload.Recipient),
		), nil
	}
	return a.Kind.String(), nil
}

func (c *Controller) rewardDecimals(ctx context.Context) (uint8, error) {
	token, err := c.gateway.RewardToken(ctx)
	if err != nil {
		return 0, err
	}
	info, err := c.gateway.TokenInfo(ctx, token)
	if err != nil {
		return 0, err
	}
	return info.Decimals, nil
}
