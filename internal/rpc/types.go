package rpc

import (
	"github.com/Klingon-tech/tip-staking/internal/staking"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32010 // The ledger refused the operation.
	CodeUnauthorized   = -32011 // Bad signature, stale nonce or not the owner.
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────
//
// Amounts are base-unit decimal strings. Addresses are 0x-prefixed hex.

// AddressParam is used by per-account queries.
type AddressParam struct {
	Address string `json:"address"`
}

// PenaltyParam is used by staking_calculatePenalty.
type PenaltyParam struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// AllowanceParam is used by token_allowance.
type AllowanceParam struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

// EventsParam is used by staking_getEvents and staking_waitEvents.
type EventsParam struct {
	FromSeq uint64 `json:"from_seq"`
	Limit   int    `json:"limit,omitempty"`
	// Timeout bounds staking_waitEvents, in seconds.
	Timeout int `json:"timeout,omitempty"`
}

// Auth authenticates a mutating call. See SigningHash.
type Auth struct {
	PubKey    string `json:"pubkey"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// AmountParam is used by staking_stake and staking_unstake.
type AmountParam struct {
	Amount string `json:"amount"`
	Auth   Auth   `json:"auth"`
}

// AuthParam is used by signed calls without arguments.
type AuthParam struct {
	Auth Auth `json:"auth"`
}

// WithdrawParam is used by admin_emergencyWithdraw.
type WithdrawParam struct {
	To   string `json:"to"`
	Auth Auth   `json:"auth"`
}

// ApproveParam is used by token_approve.
type ApproveParam struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
	Auth    Auth   `json:"auth"`
}

// TransferParam is used by token_transfer.
type TransferParam struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Auth   Auth   `json:"auth"`
}

// ── Result types ────────────────────────────────────────────────────────

// UserInfoResult is returned by staking_getUserInfo.
type UserInfoResult struct {
	Address     string `json:"address"`
	Amount      string `json:"amount"`
	Rewards     string `json:"rewards"`
	DepositTime int64  `json:"deposit_time"`
	UnlockTime  int64  `json:"unlock_time"`
}

// AmountResult wraps a single amount.
type AmountResult struct {
	Amount string `json:"amount"`
}

// BoolResult wraps a single flag.
type BoolResult struct {
	Value bool `json:"value"`
}

// StatsResult is returned by staking_getStats.
type StatsResult struct {
	TotalStaked    string `json:"total_staked"`
	RewardRate     uint64 `json:"reward_rate"`
	MinLockPeriod  int64  `json:"min_lock_period"`
	Accounts       int    `json:"accounts"`
	Paused         bool   `json:"paused"`
	Custody        string `json:"custody"`
	CustodyBalance string `json:"custody_balance"`
	TokenID        string `json:"token_id"`
}

// ParamsResult is returned by staking_getParams.
type ParamsResult struct {
	RewardRate         uint64 `json:"reward_rate"`
	PenaltyRate        uint64 `json:"penalty_rate"`
	MinLockPeriod      int64  `json:"min_lock_period"`
	MinRewardThreshold string `json:"min_reward_threshold"`
}

// OwnerResult is returned by staking_owner.
type OwnerResult struct {
	Owner string `json:"owner"`
}

// EventsResult is returned by staking_getEvents and staking_waitEvents.
type EventsResult struct {
	Events  []staking.Event `json:"events"`
	NextSeq uint64          `json:"next_seq"`
}

// TokenInfoResult is returned by token_getInfo.
type TokenInfoResult struct {
	TokenID     string `json:"token_id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	Creator     string `json:"creator"`
	TotalSupply string `json:"total_supply"`
}

// AllowanceResult is returned by token_allowance.
type AllowanceResult struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// NonceResult is returned by auth_getNonce.
type NonceResult struct {
	Address string `json:"address"`
	// Nonce is the last accepted nonce; the next call must use a larger one.
	Nonce uint64 `json:"nonce"`
}

// OpResult is returned by every signed call that succeeds.
type OpResult struct {
	Caller string `json:"caller"`
	Nonce  uint64 `json:"nonce"`
}
