package ocr

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultSymbols maps currency symbols seen in banking apps to ISO codes.
var DefaultSymbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"£":   "GBP",
	"€":   "EUR",
	"¥":   "JPY",
	"₹":   "INR",
	"₩":   "KRW",
	"₺":   "TRY",
	"₽":   "RUB",
	"₱":   "PHP",
	"฿":   "THB",
	"₫":   "VND",
	"₪":   "ILS",
	"R$":  "BRL",
	"S/":  "PEN",
	"Rp":  "IDR",
	"zł":  "PLN",
	"kr":  "SEK",
}

var numberRE = regexp.MustCompile(`\d(?:[\d.,' \x{00A0}]*\d)?`)

// Parser turns OCR tokens into Money. The zero value is not usable, build it
// with NewParser.
type Parser struct {
	symbols map[string]string
	ordered []string // symbols, longest first
}

// NewParser returns a parser knowing DefaultSymbols plus overrides. An
// override maps a symbol to an ISO code, e.g. {"$": "AUD"}.
func NewParser(overrides map[string]string) *Parser {
	p := &Parser{symbols: make(map[string]string, len(DefaultSymbols)+len(overrides))}
	for s, c := range DefaultSymbols {
		p.symbols[s] = c
	}
	for s, c := range overrides {
		p.symbols[s] = strings.ToUpper(c)
	}
	for s := range p.symbols {
		p.ordered = append(p.ordered, s)
	}
	sort.Slice(p.ordered, func(i, j int) bool {
		if len(p.ordered[i]) != len(p.ordered[j]) {
			return len(p.ordered[i]) > len(p.ordered[j])
		}
		return p.ordered[i] < p.ordered[j]
	})
	return p
}

// ParseMoney parses a single OCR token such as "$1,234.56", "1.234,56€" or
// "EUR12.50". It reports false when the token lacks either a number or a
// currency.
func (p *Parser) ParseMoney(token string) (Money, bool) {
	token = normalizeOCRText(token)
	loc := numberRE.FindStringIndex(token)
	if loc == nil {
		return Money{}, false
	}
	prefix, raw, suffix := token[:loc[0]], token[loc[0]:loc[1]], token[loc[1]:]

	code, ok := p.currencyBefore(prefix)
	if !ok {
		code, ok = p.currencyAfter(suffix)
	}
	if !ok {
		return Money{}, false
	}
	amount, ok := parseAmount(raw)
	if !ok {
		return Money{}, false
	}
	if strings.ContainsAny(prefix, "-−") {
		amount = amount.Neg()
	}
	return Money{Amount: amount, Currency: code}, true
}

func (p *Parser) currencyBefore(s string) (string, bool) {
	s = strings.TrimRight(s, " ")
	for _, sym := range p.ordered {
		if strings.HasSuffix(s, sym) {
			return p.symbols[sym], true
		}
	}
	if len(s) >= 3 {
		if code := s[len(s)-3:]; isCode(code) {
			return code, true
		}
	}
	return "", false
}

func (p *Parser) currencyAfter(s string) (string, bool) {
	s = strings.TrimLeft(s, " ")
	for _, sym := range p.ordered {
		if strings.HasPrefix(s, sym) {
			return p.symbols[sym], true
		}
	}
	if len(s) >= 3 {
		if code := s[:3]; isCode(code) {
			return code, true
		}
	}
	return "", false
}

func isCode(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return knownCurrency(s)
}

// parseAmount normalizes grouping and decimal separators. When both '.' and
// ',' appear the last one is the decimal mark. A lone separator followed by
// exactly three digits is treated as grouping.
func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.NewReplacer(" ", "", "\u00a0", "", "'", "").Replace(raw)
	if onlyDigits(s) == "" {
		return decimal.Decimal{}, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(s, sep) > 1 || len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, sep, "")
		} else {
			s = strings.Replace(s, sep, ".", 1)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
