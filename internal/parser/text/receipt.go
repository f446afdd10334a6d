package text

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/stock-intake/internal/decimal"
	"github.com/rezonia/stock-intake/internal/model"
)

const (
	currencyTail = `(?:\s*(?:EUR|€))?`
	taxCodeTail  = `(?:\s+(?:[A-D*]|[12]))?`
)

var (
	receiptItem = regexp.MustCompile(`^(.+?)\s+(` + money.German.CurrencyPattern() + `-?)` + currencyTail + taxCodeTail + `$`)
	receiptBare = regexp.MustCompile(`^(` + money.German.CurrencyPattern() + `-?)` + currencyTail + taxCodeTail + `$`)
	receiptMult = regexp.MustCompile(`(?i)^(\d+)\s*(?:stk\.?|st\.?)?\s*[x*]\s*(` + money.German.Pattern() + `)` + currencyTail + `$`)
)

// ReceiptParser reads German retail receipts: one item per line with a
// trailing tax code, quantities on a separate "2 x 0,59" line.
type ReceiptParser struct{}

// NewReceiptParser creates a receipt parser
func NewReceiptParser() *ReceiptParser {
	return &ReceiptParser{}
}

// Format returns the layout key
func (p *ReceiptParser) Format() model.Format {
	return model.FormatReceipt
}

// Locale returns the German amount convention
func (p *ReceiptParser) Locale() money.Locale {
	return money.German
}

type multiplier struct {
	qty  int
	unit decimal.Decimal
	idx  int
}

func (p *ReceiptParser) multiplier(text string, idx int) (multiplier, bool) {
	m := receiptMult.FindStringSubmatch(text)
	if m == nil {
		return multiplier{}, false
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil || qty < 1 {
		return multiplier{}, false
	}
	unit, err := money.ParseAmount(m[2], money.German)
	if err != nil {
		return multiplier{}, false
	}
	return multiplier{qty: qty, unit: unit, idx: idx}, true
}

// Parse reads the receipt lines
func (p *ReceiptParser) Parse(lines []model.ClassifiedLine) *model.ParseResult {
	c := newCollector(p.Format(), p.Locale(), dateGerman)
	var items []model.ParsedItem
	var pending *multiplier
	pendingName := -1

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if c.handle(line) {
			continue
		}
		if m, ok := p.multiplier(line.Text, i); ok {
			pending = &m
			continue
		}

		var name, amount string
		nameLine := line.Number
		switch line.Kind {
		case model.LineItem:
			m := receiptItem.FindStringSubmatch(line.Text)
			if m == nil {
				c.fail(line, "item", "unrecognized item layout", nil)
				continue
			}
			name, amount = m[1], m[2]
		default:
			if m := receiptBare.FindStringSubmatch(line.Text); m != nil && pendingName == i-1 && pendingName >= 0 {
				name, amount = lines[pendingName].Text, m[1]
				nameLine = lines[pendingName].Number
				break
			}
			if isNameText(line.Text) {
				if len(items) == 0 && c.meta.Supplier == nil && !hasDigit(line.Text) {
					store := line.Text
					c.meta.Supplier = &store
				} else {
					pendingName = i
				}
			}
			continue
		}

		total, err := money.ParseAmount(amount, money.German)
		if err != nil {
			c.fail(line, "total_price", "unreadable amount", err)
			continue
		}
		if total.IsNegative() {
			// deposit returns and corrections
			c.meta.AddPriceReduction(total)
			continue
		}

		qty, unit := 1, total
		if i+1 < len(lines) {
			if m, ok := p.multiplier(lines[i+1].Text, i+1); ok && money.Reconciles(total, m.qty, m.unit) {
				qty, unit = m.qty, m.unit
				i++
			}
		}
		if qty == 1 && pending != nil && pending.idx == i-1 && money.Reconciles(total, pending.qty, pending.unit) {
			qty, unit = pending.qty, pending.unit
		}
		pending = nil

		item, ok := newItem(name, qty, &unit, total, nameLine)
		if !ok {
			c.fail(line, "quantity", "quantity times unit price does not match total", nil)
			continue
		}
		items = append(items, item)
	}
	return c.result(items)
}

// hasLower reports whether s contains a lowercase letter
func hasLower(s string) bool {
	return strings.ToUpper(s) != s
}
