package strategy

import "math/big"

const (
	basisPointsUnit = 10_000
	secondsPerYear  = 31_536_000
)

var (
	basisPoints = big.NewInt(basisPointsUnit)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 precision
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// rayMul truncates so the source never releases more than it holds.
func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, ray)
}

func rayDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	return numerator.Quo(numerator, b)
}

// ratePerSecond converts an APR in basis points into a per-second ray rate.
func ratePerSecond(aprBps uint64) *big.Int {
	if aprBps == 0 {
		return big.NewInt(0)
	}
	rate := new(big.Int).Mul(ray, new(big.Int).SetUint64(aprBps))
	rate.Quo(rate, basisPoints)
	return rate.Quo(rate, big.NewInt(secondsPerYear))
}

func mulBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, basisPoints)
}

// sharesFromAssets mirrors the lending pool's LP share minting: the first
// deposit mints 1:1, later deposits mint pro rata to the existing supply.
func sharesFromAssets(amount, totalShares, totalAssets *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if totalShares == nil || totalShares.Sign() == 0 || totalAssets == nil || totalAssets.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	shares := new(big.Int).Mul(amount, totalShares)
	return shares.Quo(shares, totalAssets)
}

// sharesToBurn rounds up so withdrawals never leave over-collateralised shares.
func sharesToBurn(amount, totalShares, totalAssets *big.Int) *big.Int {
	if totalAssets == nil || totalAssets.Sign() == 0 {
		return big.NewInt(0)
	}
	shares := new(big.Int).Mul(amount, totalShares)
	shares.Add(shares, new(big.Int).Sub(totalAssets, big.NewInt(1)))
	return shares.Quo(shares, totalAssets)
}
