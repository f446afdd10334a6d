package decimal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// MinorUnit is the smallest currency step (one cent)
var MinorUnit = decimal.New(1, -2)

// Locale describes how a supplier prints amounts
type Locale struct {
	Decimal   rune
	Thousands rune
}

var (
	// German prints 1.234,56
	German = Locale{Decimal: ',', Thousands: '.'}
	// Dotted prints 1,234.56
	Dotted = Locale{Decimal: '.', Thousands: ','}
)

// Pattern returns an unanchored regexp fragment matching one amount in this
// locale, with an optional sign and 1-4 fraction digits.
func (l Locale) Pattern() string {
	d := regexp.QuoteMeta(string(l.Decimal))
	t := regexp.QuoteMeta(string(l.Thousands))
	return `[-+]?(?:\d{1,3}(?:` + t + `\d{3})+|\d+)(?:` + d + `\d{1,4})?`
}

// CurrencyPattern is like Pattern but requires exactly two fraction digits
func (l Locale) CurrencyPattern() string {
	d := regexp.QuoteMeta(string(l.Decimal))
	t := regexp.QuoteMeta(string(l.Thousands))
	return `[-+]?(?:\d{1,3}(?:` + t + `\d{3})+|\d+)` + d + `\d{2}`
}

var (
	germanAmount = regexp.MustCompile(`^` + German.Pattern() + `$`)
	dottedAmount = regexp.MustCompile(`^` + Dotted.Pattern() + `$`)
)

func (l Locale) matcher() *regexp.Regexp {
	if l == German {
		return germanAmount
	}
	if l == Dotted {
		return dottedAmount
	}
	return regexp.MustCompile(`^` + l.Pattern() + `$`)
}

// ParseAmount parses an amount printed in the given locale. Currency markers
// (EUR, €) are ignored and a trailing minus (0,10-) is accepted as a sign.
func ParseAmount(s string, loc Locale) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimSuffix(clean, "EUR")
	clean = strings.TrimSuffix(clean, "€")
	clean = strings.TrimPrefix(clean, "€")
	clean = strings.TrimSpace(clean)
	if strings.HasSuffix(clean, "-") && !strings.HasPrefix(clean, "-") {
		clean = "-" + strings.TrimSpace(strings.TrimSuffix(clean, "-"))
	}
	if clean == "" || !loc.matcher().MatchString(clean) {
		return Zero, fmt.Errorf("not an amount: %q", s)
	}
	clean = strings.ReplaceAll(clean, string(loc.Thousands), "")
	clean = strings.ReplaceAll(clean, string(loc.Decimal), ".")
	return decimal.NewFromString(clean)
}

// UnitPrice derives a unit price from a line total, kept at 4 places so the
// line still reconciles to the cent for realistic quantities
func UnitPrice(total decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return Zero
	}
	return total.Div(decimal.NewFromInt(int64(quantity))).Round(4)
}

// Reconciles reports whether total equals quantity * unit within one minor unit
func Reconciles(total decimal.Decimal, quantity int, unit decimal.Decimal) bool {
	diff := total.Sub(unit.Mul(decimal.NewFromInt(int64(quantity)))).Abs()
	return diff.LessThanOrEqual(MinorUnit)
}

// RoundCurrency rounds to whole cents
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// OrZero dereferences an optional amount
func OrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return Zero
	}
	return *d
}
