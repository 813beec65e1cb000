package marketdata

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// q96 is 2^96, the fixed-point scale of the on-chain sqrt price.
var q96 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)

// PriceFromSqrtX96 converts an on-chain sqrtPriceX96 value into a
// human-scale token1-per-token0 price: (x / 2^96)^2 * 10^(dec0-dec1).
// The conversion runs on wide decimals so a 160-bit input never truncates
// before the division; only the final result is a float64. Nil or
// non-positive inputs yield 0.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, token0Decimals, token1Decimals int) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}
	sqrtPrice := decimal.NewFromBigInt(sqrtPriceX96, 0).DivRound(q96, 40)
	price := sqrtPrice.Mul(sqrtPrice)
	adjusted := price.Shift(int32(token0Decimals - token1Decimals))
	f, _ := adjusted.Float64()
	return f
}

// SqrtX96FromPrice is the inverse of PriceFromSqrtX96, used for round-trip
// verification and for deriving bounds fed into transaction parameters.
func SqrtX96FromPrice(price float64, token0Decimals, token1Decimals int) *big.Int {
	if price <= 0 {
		return new(big.Int)
	}
	raw := decimal.NewFromFloat(price).Shift(int32(token1Decimals - token0Decimals))
	// decimal has no square root; go through big.Float which carries enough
	// precision for a 160-bit result.
	rawFloat, _ := new(big.Float).SetPrec(256).SetString(raw.String())
	sqrt := new(big.Float).SetPrec(256).Sqrt(rawFloat)
	scale := new(big.Float).SetPrec(256).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	scaled := new(big.Float).SetPrec(256).Mul(sqrt, scale)
	out, _ := scaled.Int(nil)
	return out
}
