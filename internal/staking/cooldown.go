package staking

// DefaultCooldownSeconds is the default interval a principal must wait
// between deposits (one day). Keyed per principal across all tiers.
const DefaultCooldownSeconds int64 = 24 * 60 * 60

// checkCooldown fails with ErrCooldownActive if the principal deposited less
// than cooldownSeconds ago. A zero LastDeposit means the principal has never
// deposited and carries no cooldown. The caller records the new deposit time
// in the same commit as the deposit itself.
func checkCooldown(acct Account, now, cooldownSeconds int64) error {
	if acct.LastDeposit > 0 && now < acct.LastDeposit+cooldownSeconds {
		return ErrCooldownActive
	}
	return nil
}
