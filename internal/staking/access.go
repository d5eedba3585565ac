package staking

import "github.com/tiervault/tiervault/pkg/types"

// Access control is a flat binary model: exactly one owner fixed at genesis,
// plus an owner-maintained whitelist of approved principals. There is no
// ownership transfer and no role hierarchy.

// requireOwner fails with ErrNotOwner unless caller is the ledger owner.
func requireOwner(owner, caller types.Address) error {
	if caller != owner {
		return ErrNotOwner
	}
	return nil
}

// requireApproved fails with ErrNotApproved unless the account is currently
// whitelisted.
func requireApproved(acct Account) error {
	if !acct.Approved {
		return ErrNotApproved
	}
	return nil
}
