package match

import (
	"math"

	"fireshot/pkg/ocr"
)

// Nearest returns the balance closest to (x, y). Ties keep the earliest
// balance. Resolving against no balances is a caller error.
func Nearest(balances []ocr.Balance, x, y int) (ocr.Balance, error) {
	if len(balances) == 0 {
		return ocr.Balance{}, ErrNoBalances
	}
	best := 0
	bestDist := math.Inf(1)
	for i, b := range balances {
		d := math.Hypot(float64(b.X-x), float64(b.Y-y))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return balances[best], nil
}
