package quote

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxSpreadBps is the exclusive upper bound of a dealer spread.
const MaxSpreadBps = 10000

// EffectiveRate applies the dealer spread: rate * (10000 - spreadBps) / 10000.
func EffectiveRate(rate decimal.Decimal, spreadBps int64) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(MaxSpreadBps - spreadBps)).Shift(-4)
}

// ComputeAmountOut converts amountIn (smallest units of a USD stablecoin with srcDecimals)
// at the spread-adjusted rate into smallest units of the target currency. The result is
// floored, so rounding never favors the payer.
func ComputeAmountOut(amountIn *big.Int, srcDecimals int32, rate decimal.Decimal, spreadBps int64, targetDecimals int32) *big.Int {
	amountUSD := decimal.NewFromBigInt(amountIn, -srcDecimals)
	return amountUSD.
		Mul(EffectiveRate(rate, spreadBps)).
		Shift(targetDecimals).
		Floor().
		BigInt()
}
