package model

import "fmt"

// MantissaScale is the fixed-point scale applied to every monetary value in
// the system: one represented unit equals 10^8 mantissa units.
const MantissaScale = 100_000_000

// Mantissa is a signed fixed-point integer: the represented decimal value
// times 10^8. All arithmetic on monetary fields is integer arithmetic on
// Mantissa; floating point never appears in position or P&L state.
type Mantissa int64

// Mul returns m * qty with no rescaling: qty is treated as a plain
// (unscaled) integer multiplier such as a trade quantity, so the result
// stays at the 10^8 scale of m.
func (m Mantissa) Mul(qty int64) Mantissa {
	return Mantissa(int64(m) * qty)
}

// AvgPrice computes totalCost/totalQty as a Mantissa, using truncated
// integer division. The caller must ensure totalQty >= 1 before calling;
// DivSafe below is the guarded variant used at call sites that cannot prove
// that statically.
func AvgPrice(totalCost Mantissa, totalQty int64) Mantissa {
	return Mantissa(int64(totalCost) / totalQty)
}

// DivSafe returns totalCost/totalQty, or zero if totalQty < 1. Division is
// applied only when the denominator is >= 1, per the fixed-point
// convention: never divide by a non-positive quantity.
func DivSafe(totalCost Mantissa, totalQty int64) Mantissa {
	if totalQty < 1 {
		return 0
	}
	return AvgPrice(totalCost, totalQty)
}

// Decimal renders the mantissa as a human decimal string for logs only;
// never used in arithmetic.
func (m Mantissa) Decimal() string {
	whole := int64(m) / MantissaScale
	frac := int64(m) % MantissaScale
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%08d", whole, frac)
}
