package staking

import "errors"

// Every mutating operation fails with exactly one of these errors and leaves
// no partial state behind. Callers match with errors.Is.
var (
	// ErrNotOwner is returned when a non-owner calls an admin operation.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrNotApproved is returned when a principal outside the whitelist
	// calls a user operation.
	ErrNotApproved = errors.New("principal is not approved")

	// ErrInvalidTier is returned for tier id zero or a tier that was
	// never configured.
	ErrInvalidTier = errors.New("invalid tier")

	// ErrZeroAmount is returned for a deposit of zero.
	ErrZeroAmount = errors.New("deposit amount is zero")

	// ErrCooldownActive is returned when a deposit arrives before the
	// principal's cooldown has elapsed.
	ErrCooldownActive = errors.New("deposit cooldown active")

	// ErrNoActiveStake is returned for a claim against an empty record.
	ErrNoActiveStake = errors.New("no active stake")

	// ErrStakeAlreadyClaimed is returned when the principal has already
	// claimed. The flag is per principal, not per tier: one claim blocks
	// every other tier for that principal.
	ErrStakeAlreadyClaimed = errors.New("stake already claimed")

	// ErrStakeStillLocked is returned for a claim at or before the
	// record's unlock time.
	ErrStakeStillLocked = errors.New("stake still locked")

	// ErrTransferFailed wraps a failure reported by the external asset
	// transfer collaborator.
	ErrTransferFailed = errors.New("transfer failed")
)
