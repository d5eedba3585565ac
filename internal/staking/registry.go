package staking

// TierID identifies a reward tier. ID 0 is reserved and always invalid.
type TierID uint8

// Tier holds the reward and lock parameters of one tier.
// A tier with LockSeconds == 0 has never been configured: deposits into it
// are rejected with ErrInvalidTier.
type Tier struct {
	RateBps     uint64 `json:"rate_bps"`
	LockSeconds int64  `json:"lock_seconds"`
}

// Configured returns true if the tier has been set up by the owner
// (or seeded at genesis).
func (t Tier) Configured() bool {
	return t.LockSeconds != 0
}

// TierEntry pairs a tier id with its parameters, for listings.
type TierEntry struct {
	ID TierID `json:"id"`
	Tier
}

// validateTierID rejects the reserved tier id 0. Existing tiers are
// overwritten unconditionally, so this is the only admission check.
func validateTierID(id TierID) error {
	if id == 0 {
		return ErrInvalidTier
	}
	return nil
}
