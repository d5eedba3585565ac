package staking

// StakeRecord is the per-(principal, tier) ledger entry.
type StakeRecord struct {
	Staked     uint64 `json:"staked"`
	Reward     uint64 `json:"reward"`
	UnlockTime int64  `json:"unlock_time"`
	Claimed    bool   `json:"claimed"`
}

// Account is the per-principal state shared across all tiers.
// Claimed is a single flag for the whole principal: after one successful
// claim, claims on every other tier fail with ErrStakeAlreadyClaimed.
type Account struct {
	Approved    bool  `json:"approved"`
	LastDeposit int64 `json:"last_deposit"`
	Claimed     bool  `json:"claimed"`
}

// StakeEntry pairs a tier id with a principal's record, for listings.
type StakeEntry struct {
	Tier TierID `json:"tier"`
	StakeRecord
}

// applyDeposit folds a deposit into an existing record. Amount and reward
// accumulate. The new unlock time is UnlockTime + now + lockSeconds: the
// previous unlock timestamp is added in rather than replaced, so repeated
// deposits compound the unlock time. That is the ledger's defined behavior.
func applyDeposit(rec StakeRecord, amount, reward uint64, now, lockSeconds int64) StakeRecord {
	return StakeRecord{
		Staked:     rec.Staked + amount,
		Reward:     rec.Reward + reward,
		UnlockTime: rec.UnlockTime + now + lockSeconds,
		Claimed:    false,
	}
}

// checkClaim validates that a record is claimable at now. Check order:
// empty record, principal's global claimed flag, lock. The lock comparison
// is strict: a claim exactly at UnlockTime is still locked.
func checkClaim(rec StakeRecord, acct Account, now int64) error {
	if rec.Staked == 0 {
		return ErrNoActiveStake
	}
	if acct.Claimed {
		return ErrStakeAlreadyClaimed
	}
	if now <= rec.UnlockTime {
		return ErrStakeStillLocked
	}
	return nil
}

// applyClaim returns the zeroed post-claim record and the payout.
func applyClaim(rec StakeRecord) (StakeRecord, uint64) {
	payout := rec.Staked + rec.Reward
	return StakeRecord{Claimed: true}, payout
}
