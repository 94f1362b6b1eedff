package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const stakingABIJSON = `[
  {"inputs": [{"name": "lpToken", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "stake", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "lpToken", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "unstake", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "lpToken", "type": "address"}], "name": "claimRewards", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "user", "type": "address"}, {"name": "lpToken", "type": "address"}], "name": "getUserStakeInfo", "outputs": [{"name": "amount", "type": "uint256"}, {"name": "pendingRewards", "type": "uint256"}, {"name": "lastRewardTime", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "user", "type": "address"}, {"name": "lpToken", "type": "address"}], "name": "earned", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getPairs", "outputs": [{"components": [{"name": "lpToken", "type": "address"}, {"name": "name", "type": "string"}, {"name": "platform", "type": "string"}, {"name": "weight", "type": "uint256"}, {"name": "isActive", "type": "bool"}], "name": "", "type": "tuple[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getActivePairs", "outputs": [{"type": "address[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "", "type": "uint256"}], "name": "activePairs", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "", "type": "address"}], "name": "pairs", "outputs": [{"name": "name", "type": "string"}, {"name": "platform", "type": "string"}, {"name": "weight", "type": "uint256"}, {"name": "isActive", "type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "rewardToken", "outputs": [{"type": "address"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "hourlyRewardRate", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "totalWeight", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getSigners", "outputs": [{"type": "address[]"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "requiredApprovals", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "", "type": "uint256"}], "name": "actions", "outputs": [{"name": "actionType", "type": "uint8"}, {"name": "proposer", "type": "address"}, {"name": "proposedTime", "type": "uint256"}, {"name": "approvals", "type": "uint256"}, {"name": "executed", "type": "bool"}, {"name": "rejected", "type": "bool"}, {"name": "expired", "type": "bool"}, {"name": "newHourlyRewardRate", "type": "uint256"}, {"name": "pairs", "type": "address[]"}, {"name": "weights", "type": "uint256[]"}, {"name": "pairToAdd", "type": "address"}, {"name": "pairNameToAdd", "type": "string"}, {"name": "platformToAdd", "type": "string"}, {"name": "weightToAdd", "type": "uint256"}, {"name": "pairToRemove", "type": "address"}, {"name": "newSigner", "type": "address"}, {"name": "signerToRemove", "type": "address"}, {"name": "recipient", "type": "address"}, {"name": "withdrawAmount", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "actionCount", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "actionId", "type": "uint256"}], "name": "executeAction", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "role", "type": "bytes32"}, {"name": "account", "type": "address"}], "name": "hasRole", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "ADMIN_ROLE", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIJSON = `[
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}], "name": "allowance", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "approve", "outputs": [{"type": "bool"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "to", "type": "address"}, {"name": "amount", "type": "uint256"}], "name": "transfer", "outputs": [{"type": "bool"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

var (
	stakingABI     abi.ABI
	stakingABIOnce sync.Once
	stakingABIErr  error
	erc20ABI       abi.ABI
	erc20ABIOnce   sync.Once
	erc20ABIErr    error
)

func stakingABIInstance() (abi.ABI, error) {
	stakingABIOnce.Do(func() {
		stakingABI, stakingABIErr = abi.JSON(strings.NewReader(stakingABIJSON))
	})
	return stakingABI, stakingABIErr
}

func erc20ABIInstance() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}
