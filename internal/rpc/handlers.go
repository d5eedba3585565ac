package rpc

import (
	"errors"
	"fmt"

	"github.com/tiervault/tiervault/internal/escrow"
	"github.com/tiervault/tiervault/internal/staking"
	"github.com/tiervault/tiervault/pkg/types"
)

// ledgerErrors are the domain rejections the engine can return. They map
// to CodeLedgerError with a stable reason string so clients can branch
// without parsing messages.
var ledgerErrors = []struct {
	err    error
	reason string
}{
	{staking.ErrNotOwner, "not_owner"},
	{staking.ErrNotApproved, "not_approved"},
	{staking.ErrInvalidTier, "invalid_tier"},
	{staking.ErrZeroAmount, "zero_amount"},
	{staking.ErrCooldownActive, "cooldown_active"},
	{staking.ErrNoActiveStake, "no_active_stake"},
	{staking.ErrStakeAlreadyClaimed, "stake_already_claimed"},
	{staking.ErrStakeStillLocked, "stake_still_locked"},
	{staking.ErrTransferFailed, "transfer_failed"},
}

// mapEngineError converts an engine error into a JSON-RPC error. Domain
// rejections become CodeLedgerError with the reason in the data field;
// anything else is an internal error.
func (s *Server) mapEngineError(err error) *Error {
	for _, le := range ledgerErrors {
		if errors.Is(err, le.err) {
			if s.collector != nil {
				s.collector.RecordRejection(le.reason)
			}
			return &Error{Code: CodeLedgerError, Message: err.Error(), Data: le.reason}
		}
	}
	s.logger.Error().Err(err).Msg("RPC internal error")
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// parseAddr decodes a required address parameter.
func parseAddr(field, value string) (types.Address, *Error) {
	if value == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("%s is required", field)}
	}
	addr, err := types.ParseAddress(value)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return addr, nil
}

// ── Read endpoints ──────────────────────────────────────────────────────

func (s *Server) handleStakingGetInfo(req *Request) (interface{}, *Error) {
	genHash, err := s.engine.GenesisHash()
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	tiers, err := s.engine.Tiers()
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	seq, err := s.engine.EventSeq()
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return &StakingInfoResult{
		LedgerID:        s.genesis.LedgerID,
		GenesisHash:     genHash.String(),
		Owner:           s.engine.Owner().String(),
		CooldownSeconds: s.engine.CooldownSeconds(),
		TierCount:       len(tiers),
		EventSeq:        seq,
	}, nil
}

func (s *Server) handleStakingGetTier(req *Request) (interface{}, *Error) {
	var params TierParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Tier == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "tier must be 1-255"}
	}

	tier, err := s.engine.Tier(staking.TierID(params.Tier))
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	r := newTierResult(staking.TierEntry{ID: staking.TierID(params.Tier), Tier: tier})
	return &r, nil
}

func (s *Server) handleStakingListTiers(req *Request) (interface{}, *Error) {
	entries, err := s.engine.Tiers()
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	tiers := make([]TierResult, len(entries))
	for i, e := range entries {
		tiers[i] = newTierResult(e)
	}
	return &TierListResult{Count: len(tiers), Tiers: tiers}, nil
}

func (s *Server) handleStakingGetStake(req *Request) (interface{}, *Error) {
	var params StakeParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	rec, err := s.engine.StakeDetails(addr, staking.TierID(params.Tier))
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	r := newStakeResult(addr.String(), staking.TierID(params.Tier), rec)
	return &r, nil
}

func (s *Server) handleStakingListStakes(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	entries, err := s.engine.StakesOf(addr)
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	stakes := make([]StakeResult, len(entries))
	for i, e := range entries {
		stakes[i] = newStakeResult(addr.String(), e.Tier, e.StakeRecord)
	}
	return &StakeListResult{Address: addr.String(), Count: len(stakes), Stakes: stakes}, nil
}

func (s *Server) handleStakingGetAccount(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	acct, err := s.engine.Account(addr)
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return &AccountResult{
		Address:     addr.String(),
		Approved:    acct.Approved,
		LastDeposit: acct.LastDeposit,
		Claimed:     acct.Claimed,
	}, nil
}

func (s *Server) handleStakingListEvents(req *Request) (interface{}, *Error) {
	var params EventsParam
	if req.Params != nil {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit <= 0 || params.Limit > 1000 {
		params.Limit = 100
	}

	events, err := s.engine.Events(params.From, params.Limit)
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	latest, err := s.engine.EventSeq()
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return &EventListResult{Count: len(events), Latest: latest, Events: events}, nil
}

// ── Write endpoints ─────────────────────────────────────────────────────

func (s *Server) handleStakingSetTier(req *Request) (interface{}, *Error) {
	var params SetTierParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Tier == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "tier must be 1-255"}
	}

	if err := s.engine.SetTier(caller, s.now(), staking.TierID(params.Tier), params.RateBps, params.LockSeconds); err != nil {
		return nil, s.mapEngineError(err)
	}
	return &TierResult{
		Tier:        params.Tier,
		RateBps:     params.RateBps,
		LockSeconds: params.LockSeconds,
		Configured:  true,
	}, nil
}

func (s *Server) handleStakingSetApproval(req *Request) (interface{}, *Error) {
	var params SetApprovalParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	if err := s.engine.SetApproval(caller, s.now(), addr, params.Approved); err != nil {
		return nil, s.mapEngineError(err)
	}
	return &AccountResult{Address: addr.String(), Approved: params.Approved}, nil
}

func (s *Server) handleStakingDeposit(req *Request) (interface{}, *Error) {
	var params DepositParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	rec, err := s.engine.Deposit(s.now(), addr, staking.TierID(params.Tier), params.Amount)
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return &DepositResult{
		Address:    addr.String(),
		Tier:       params.Tier,
		Staked:     rec.Staked,
		Reward:     rec.Reward,
		UnlockTime: rec.UnlockTime,
	}, nil
}

func (s *Server) handleStakingClaim(req *Request) (interface{}, *Error) {
	var params ClaimParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	payout, err := s.engine.Claim(s.now(), addr, staking.TierID(params.Tier))
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return &ClaimResult{Address: addr.String(), Tier: params.Tier, Payout: payout}, nil
}

// ── Escrow and node endpoints ───────────────────────────────────────────

func (s *Server) handleEscrowGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}

	balance, err := s.book.Balance(addr)
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return &BalanceResult{Address: addr.String(), Balance: balance}, nil
}

func (s *Server) handleNodeGetInfo(req *Request) (interface{}, *Error) {
	genHash, err := s.engine.GenesisHash()
	if err != nil {
		return nil, s.mapEngineError(err)
	}

	feedClients := 0
	if s.hub != nil {
		feedClients = s.hub.ClientCount()
	}

	return &NodeInfoResult{
		Network:     string(s.network),
		LedgerID:    s.genesis.LedgerID,
		GenesisHash: genHash.String(),
		Vault:       escrow.VaultAddress().String(),
		FeedClients: feedClients,
	}, nil
}
