package rpc

import (
	"github.com/tiervault/tiervault/internal/staking"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeLedgerError    = -32000
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

// TierParam is used by endpoints that take a single tier id.
type TierParam struct {
	Tier uint8 `json:"tier"`
}

// AddressParam is used by endpoints that take a single address.
type AddressParam struct {
	Address string `json:"address"`
}

// StakeParam is used by staking_getStake.
type StakeParam struct {
	Address string `json:"address"`
	Tier    uint8  `json:"tier"`
}

// SetTierParam is used by staking_setTier.
type SetTierParam struct {
	Caller      string `json:"caller"`
	Tier        uint8  `json:"tier"`
	RateBps     uint64 `json:"rate_bps"`
	LockSeconds int64  `json:"lock_seconds"`
}

// SetApprovalParam is used by staking_setApproval.
type SetApprovalParam struct {
	Caller   string `json:"caller"`
	Address  string `json:"address"`
	Approved bool   `json:"approved"`
}

// DepositParam is used by staking_deposit.
type DepositParam struct {
	Address string `json:"address"`
	Tier    uint8  `json:"tier"`
	Amount  uint64 `json:"amount"`
}

// ClaimParam is used by staking_claim.
type ClaimParam struct {
	Address string `json:"address"`
	Tier    uint8  `json:"tier"`
}

// EventsParam is used by staking_listEvents. From is the first sequence
// number to return (0 = from the beginning); Limit caps the page size.
type EventsParam struct {
	From  uint64 `json:"from,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// StakingInfoResult is returned by staking_getInfo.
type StakingInfoResult struct {
	LedgerID        string `json:"ledger_id"`
	GenesisHash     string `json:"genesis_hash"`
	Owner           string `json:"owner"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
	TierCount       int    `json:"tier_count"`
	EventSeq        uint64 `json:"event_seq"`
}

// TierResult describes one tier.
type TierResult struct {
	Tier        uint8  `json:"tier"`
	RateBps     uint64 `json:"rate_bps"`
	LockSeconds int64  `json:"lock_seconds"`
	Configured  bool   `json:"configured"`
}

// TierListResult is returned by staking_listTiers.
type TierListResult struct {
	Count int          `json:"count"`
	Tiers []TierResult `json:"tiers"`
}

// StakeResult describes one (principal, tier) stake record.
type StakeResult struct {
	Address    string `json:"address"`
	Tier       uint8  `json:"tier"`
	Staked     uint64 `json:"staked"`
	Reward     uint64 `json:"reward"`
	UnlockTime int64  `json:"unlock_time"`
	Claimed    bool   `json:"claimed"`
}

// StakeListResult is returned by staking_listStakes.
type StakeListResult struct {
	Address string        `json:"address"`
	Count   int           `json:"count"`
	Stakes  []StakeResult `json:"stakes"`
}

// AccountResult is returned by staking_getAccount.
type AccountResult struct {
	Address     string `json:"address"`
	Approved    bool   `json:"approved"`
	LastDeposit int64  `json:"last_deposit"`
	Claimed     bool   `json:"claimed"`
}

// DepositResult is returned by staking_deposit: the stake record as it
// stands after the deposit was committed.
type DepositResult struct {
	Address    string `json:"address"`
	Tier       uint8  `json:"tier"`
	Staked     uint64 `json:"staked"`
	Reward     uint64 `json:"reward"`
	UnlockTime int64  `json:"unlock_time"`
}

// ClaimResult is returned by staking_claim.
type ClaimResult struct {
	Address string `json:"address"`
	Tier    uint8  `json:"tier"`
	Payout  uint64 `json:"payout"`
}

// EventListResult is returned by staking_listEvents.
type EventListResult struct {
	Count  int              `json:"count"`
	Latest uint64           `json:"latest"`
	Events []*staking.Event `json:"events"`
}

// BalanceResult is returned by escrow_getBalance.
type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// NodeInfoResult is returned by node_getInfo.
type NodeInfoResult struct {
	Network     string `json:"network"`
	LedgerID    string `json:"ledger_id"`
	GenesisHash string `json:"genesis_hash"`
	Vault       string `json:"vault"`
	FeedClients int    `json:"feed_clients"`
}

// newTierResult converts a tier entry into its RPC shape.
func newTierResult(e staking.TierEntry) TierResult {
	return TierResult{
		Tier:        uint8(e.ID),
		RateBps:     e.RateBps,
		LockSeconds: e.LockSeconds,
		Configured:  e.Configured(),
	}
}

// newStakeResult converts a stake record into its RPC shape.
func newStakeResult(addr string, id staking.TierID, rec staking.StakeRecord) StakeResult {
	return StakeResult{
		Address:    addr,
		Tier:       uint8(id),
		Staked:     rec.Staked,
		Reward:     rec.Reward,
		UnlockTime: rec.UnlockTime,
		Claimed:    rec.Claimed,
	}
}
