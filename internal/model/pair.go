package model

import "math/big"

// Pair is one stakeable LP token registered with the staking contract.
// Identity is the LP token address; pairs are deactivated, never deleted.
type Pair struct {
	LPToken  string `json:"lp_token"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Weight   uint64 `json:"weight"`
	IsActive bool   `json:"is_active"`
}

// UserStake is a point-in-time snapshot of one user's position in a pair.
type UserStake struct {
	User           string   `json:"user"`
	LPToken        string   `json:"lp_token"`
	Amount         *big.Int `json:"amount"`
	PendingRewards *big.Int `json:"pending_rewards"`
	LastRewardTime uint64   `json:"last_reward_time"`
}
