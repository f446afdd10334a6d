package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/stock-intake/internal/decimal"
	"github.com/rezonia/stock-intake/internal/model"
)

// lookahead is how many following lines an item may consume
const lookahead = 2

// Metadata patterns shared by all layouts
var (
	invoiceNumberPattern = regexp.MustCompile(`(?i)^(?:rechnungs?-?\s*(?:nr|nummer|no)?|beleg(?:-?nr)?|bon-?nr|invoice(?:\s*(?:no|number))?|order(?:\s*(?:no|number))?|bestell(?:ung|nummer|-?nr)?)\.?\s*(?:nr\.?|no\.?|nummer)?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-/]*)`)
	dateKeyPattern       = regexp.MustCompile(`(?i)(?:datum|date)\b`)
	supplierPattern      = regexp.MustCompile(`(?i)^(?:lieferant|supplier|seller|verk[äa]ufer)\s*[:.]?\s*(.+)$`)
	notePattern          = regexp.MustCompile(`(?i)^(?:hinweis|note)\s*[:.]?\s*(.+)$`)
	costsPattern         = regexp.MustCompile(`(?i)^(?:versand(?:kosten)?|fracht(?:kosten)?|shipping)\b`)
	bestBeforePattern    = regexp.MustCompile(`(?i)^(?:mhd|best before)\b`)
	totalPattern         = regexp.MustCompile(`(?i)^(?:summe|zu zahlen|gesamt(?:betrag|summe)?|endbetrag|total)\b`)

	germanDatePattern = regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.(?:\d{4}|\d{2})\b`)
	isoDatePattern    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// dateStyle tells how a layout prints calendar dates
type dateStyle int

const (
	dateGerman dateStyle = iota
	dateISO
)

// findDate returns the first date printed in s
func findDate(s string, style dateStyle) (time.Time, bool) {
	switch style {
	case dateISO:
		if m := isoDatePattern.FindString(s); m != "" {
			if t, err := time.Parse("2006-01-02", m); err == nil {
				return t, true
			}
		}
	default:
		if m := germanDatePattern.FindString(s); m != "" {
			for _, layout := range []string{"2.1.2006", "2.1.06"} {
				if t, err := time.Parse(layout, m); err == nil {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

// amounts returns every currency-shaped token of s in order
func amounts(s string, loc money.Locale) []decimal.Decimal {
	var out []decimal.Decimal
	for _, f := range strings.Fields(s) {
		f = trimCurrency(f)
		if !currencyToken.MatchString(f) {
			continue
		}
		if d, err := money.ParseAmount(f, loc); err == nil {
			out = append(out, d)
		}
	}
	return out
}

func lastAmount(s string, loc money.Locale) (decimal.Decimal, bool) {
	all := amounts(s, loc)
	if len(all) == 0 {
		return decimal.Zero, false
	}
	return all[len(all)-1], true
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// isNameText reports whether an Unknown line can be read as product text
func isNameText(s string) bool {
	return countAmounts(s) == 0 && countLetters(strings.Fields(s)) >= 2
}

// collector accumulates the invoice-level fields every layout shares and
// the diagnostics for skipped lines.
type collector struct {
	format model.Format
	loc    money.Locale
	dates  dateStyle
	meta   model.InvoiceMetadata
	errs   []*model.ParseError
}

func newCollector(format model.Format, loc money.Locale, dates dateStyle) *collector {
	return &collector{format: format, loc: loc, dates: dates}
}

func (c *collector) fail(line model.ClassifiedLine, field, message string, cause error) {
	switch {
	case cause == nil:
		cause = model.ErrUnparseableLine
	case !errors.Is(cause, model.ErrUnparseableLine):
		cause = fmt.Errorf("%w: %w", model.ErrUnparseableLine, cause)
	}
	c.errs = append(c.errs, model.NewParseError(c.format, line.Number, field, message, cause))
}

// handle consumes the non-item shapes. It reports false for Item and
// Unknown lines, which are layout specific.
func (c *collector) handle(line model.ClassifiedLine) bool {
	switch line.Kind {
	case model.LineTaxSummary:
		c.taxLine(line)
	case model.LineDiscount:
		if amt, ok := lastAmount(line.Text, c.loc); ok {
			c.meta.AddPriceReduction(amt)
		} else {
			c.fail(line, "discount", "no amount on discount line", nil)
		}
	case model.LineSignature:
		if totalPattern.MatchString(line.Text) {
			if amt, ok := lastAmount(line.Text, c.loc); ok {
				c.meta.TotalAmount = &amt
			}
		}
	case model.LineMetadata:
		c.metadata(line)
	default:
		return false
	}
	return true
}

func (c *collector) taxLine(line model.ClassifiedLine) {
	m := taxRatePattern.FindStringSubmatchIndex(line.Text)
	if m == nil {
		// table header
		return
	}
	figures := amounts(line.Text[m[1]:], c.loc)
	if len(figures) < 3 {
		c.fail(line, "tax_rate", "expected net, tax and gross", nil)
		return
	}
	rate, err := decimal.NewFromString(strings.ReplaceAll(line.Text[m[2]:m[3]], ",", "."))
	if err != nil {
		c.fail(line, "tax_rate", "bad rate", err)
		return
	}
	n := len(figures)
	c.meta.TaxRates = append(c.meta.TaxRates, model.TaxRateLine{
		Rate:  rate,
		Net:   figures[n-3],
		Tax:   figures[n-2],
		Gross: figures[n-1],
	})
}

func (c *collector) metadata(line model.ClassifiedLine) {
	text := line.Text
	switch {
	case bestBeforePattern.MatchString(text):
		// only meaningful next to an item
		return
	case costsPattern.MatchString(text):
		if amt, ok := lastAmount(text, c.loc); ok {
			c.meta.AddAdditionalCosts(amt)
		}
		return
	}
	if m := supplierPattern.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		c.meta.Supplier = &name
		return
	}
	if m := notePattern.FindStringSubmatch(text); m != nil {
		c.meta.AppendNote(strings.TrimSpace(m[1]))
		return
	}
	if c.meta.InvoiceNumber == nil && !dateKeyPattern.MatchString(firstWord(text)) {
		if m := invoiceNumberPattern.FindStringSubmatch(text); m != nil && hasDigit(m[1]) {
			number := m[1]
			c.meta.InvoiceNumber = &number
		}
	}
	if c.meta.InvoiceDate == nil {
		if d, ok := findDate(text, c.dates); ok {
			c.meta.InvoiceDate = &d
		}
	}
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// bestBefore reads an MHD line inside an item's lookahead window
func (c *collector) bestBefore(line model.ClassifiedLine) (*time.Time, bool) {
	if line.Kind != model.LineMetadata || !bestBeforePattern.MatchString(line.Text) {
		return nil, false
	}
	d, ok := findDate(line.Text, c.dates)
	if !ok {
		c.fail(line, "best_before", "unreadable date", nil)
		return nil, true
	}
	return &d, true
}

func (c *collector) result(items []model.ParsedItem) *model.ParseResult {
	res := &model.ParseResult{
		Success:    len(items) > 0,
		Format:     c.format,
		Items:      items,
		Metadata:   &c.meta,
		LineErrors: c.errs,
	}
	if !res.Success {
		res.ErrorMessage = model.ErrNoItemsRecognized.Error()
	}
	return res
}

// newItem builds an item and reconciles its price fields. A nil unit price
// means none was printed and is derived from the total; a printed unit price
// that was rounded to cents is replaced by the derived one. Negative amounts
// never make an item.
func newItem(name string, qty int, printed *decimal.Decimal, total decimal.Decimal, line int) (model.ParsedItem, bool) {
	if qty < 1 || strings.TrimSpace(name) == "" || total.IsNegative() {
		return model.ParsedItem{}, false
	}
	unit := money.UnitPrice(total, qty)
	if printed != nil {
		if printed.IsNegative() {
			return model.ParsedItem{}, false
		}
		unit = *printed
	}
	if !money.Reconciles(total, qty, unit) {
		derived := money.UnitPrice(total, qty)
		if !money.RoundCurrency(derived).Equal(money.RoundCurrency(unit)) {
			return model.ParsedItem{}, false
		}
		unit = derived
	}
	return model.ParsedItem{
		ProductName: strings.Join(strings.Fields(name), " "),
		Quantity:    qty,
		UnitPrice:   unit,
		TotalPrice:  total,
		Line:        line,
	}, true
}
