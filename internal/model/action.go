package model

import "math/big"

// ActionKind identifies the governance operation a multi-sig action carries.
type ActionKind uint8

const (
	ActionSetHourlyRewardRate ActionKind = iota
	ActionUpdatePairWeights
	ActionAddPair
	ActionRemovePair
	ActionChangeSigner
	ActionWithdrawRewards
)

func (k ActionKind) String() string {
	switch k {
	case ActionSetHourlyRewardRate:
		return "SET_HOURLY_REWARD_RATE"
	case ActionUpdatePairWeights:
		return "UPDATE_PAIR_WEIGHTS"
	case ActionAddPair:
		return "ADD_PAIR"
	case ActionRemovePair:
		return "REMOVE_PAIR"
	case ActionChangeSigner:
		return "CHANGE_SIGNER"
	case ActionWithdrawRewards:
		return "WITHDRAW_REWARDS"
	default:
		return "UNKNOWN"
	}
}

// ActionPayload carries the kind-specific fields of a governance action.
// Only the fields relevant to the kind are populated.
type ActionPayload struct {
	NewHourlyRewardRate *big.Int   `json:"new_hourly_reward_rate,omitempty"`
	Pairs               []string   `json:"pairs,omitempty"`
	Weights             []*big.Int `json:"weights,omitempty"`
	PairToAdd           string     `json:"pair_to_add,omitempty"`
	PairNameToAdd       string     `json:"pair_name_to_add,omitempty"`
	PlatformToAdd       string     `json:"platform_to_add,omitempty"`
	WeightToAdd         *big.Int   `json:"weight_to_add,omitempty"`
	PairToRemove        string     `json:"pair_to_remove,omitempty"`
	NewSigner           string     `json:"new_signer,omitempty"`
	SignerToRemove      string     `json:"signer_to_remove,omitempty"`
	Recipient           string     `json:"recipient,omitempty"`
	WithdrawAmount      *big.Int   `json:"withdraw_amount,omitempty"`
}

// GovernanceAction mirrors one entry of the contract's actions mapping.
// Readiness (executable, expiry-by-time) is derived, never stored here.
type GovernanceAction struct {
	ID          uint64        `json:"id"`
	Kind        ActionKind    `json:"kind"`
	Proposer    string        `json:"proposer"`
	ProposedAt  uint64        `json:"proposed_at"`
	Approvals   uint64        `json:"approvals"`
	Executed    bool          `json:"executed"`
	Rejected    bool          `json:"rejected"`
	ExpiredFlag bool          `json:"expired_flag"`
	Payload     ActionPayload `json:"payload"`
}
