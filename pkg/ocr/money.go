package ocr

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is a parsed monetary value. Currency is an ISO 4217 code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// Balance is one monetary token found in a screenshot, positioned at the
// top-left corner of the recognized word in preprocessed-image pixels.
type Balance struct {
	X     int
	Y     int
	Price Money
}

// currency returns the money's currency. Unknown codes still yield a usable
// currency with default formatting.
func (m Money) currency() *money.Currency {
	return money.New(0, m.Currency).Currency()
}

// String formats the value the way the currency is usually displayed,
// e.g. "$1,234.50" or "£12.00".
func (m Money) String() string {
	cur := m.currency()
	minor := m.Amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, m.Currency).Display()
}

// SignedString is like String with an explicit "+" on positive values.
func (m Money) SignedString() string {
	if m.Amount.IsPositive() {
		return "+" + m.String()
	}
	return m.String()
}

// knownCurrency reports whether code is an ISO code go-money knows about.
func knownCurrency(code string) bool {
	return money.GetCurrency(code) != nil
}
