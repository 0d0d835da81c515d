package match

import (
	"math"
	"testing"

	"fireshot/pkg/ocr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(s string) ocr.Money {
	return ocr.Money{Amount: decimal.RequireFromString(s), Currency: "USD"}
}

func TestNearestPicksClosest(t *testing.T) {
	balances := []ocr.Balance{
		{X: 10, Y: 50, Price: usd("100.00")},
		{X: 10, Y: 80, Price: usd("250.00")},
	}
	got, err := Nearest(balances, 12, 81)
	require.NoError(t, err)
	assert.True(t, got.Price.Amount.Equal(decimal.RequireFromString("250")))
}

func TestNearestTieKeepsFirst(t *testing.T) {
	balances := []ocr.Balance{
		{X: 10, Y: 0, Price: usd("1")},
		{X: 0, Y: 10, Price: usd("2")},
		{X: -10, Y: 0, Price: usd("3")},
	}
	got, err := Nearest(balances, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, balances[0], got)
}

func TestNearestEmpty(t *testing.T) {
	_, err := Nearest(nil, 1, 1)
	assert.ErrorIs(t, err, ErrNoBalances)
}

func TestNearestIsMinimal(t *testing.T) {
	balances := []ocr.Balance{
		{X: 3, Y: 7}, {X: 100, Y: 4}, {X: 40, Y: 40}, {X: 41, Y: 39}, {X: 0, Y: 300},
	}
	refs := [][2]int{{0, 0}, {40, 40}, {99, 1}, {20, 200}, {1000, 1000}}
	for _, r := range refs {
		got, err := Nearest(balances, r[0], r[1])
		require.NoError(t, err)
		gd := math.Hypot(float64(got.X-r[0]), float64(got.Y-r[1]))
		assert.Contains(t, balances, got)
		for _, b := range balances {
			assert.LessOrEqual(t, gd, math.Hypot(float64(b.X-r[0]), float64(b.Y-r[1])))
		}
	}
}
