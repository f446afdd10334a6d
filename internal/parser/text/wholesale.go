package text

import (
	"regexp"
	"strconv"
	"time"

	money "github.com/rezonia/stock-intake/internal/decimal"
	"github.com/rezonia/stock-intake/internal/model"
)

var wholesaleItem = regexp.MustCompile(`^(\d{4,})\s+(.+?)\s+(\d+)\s+(` + money.German.Pattern() + `)\s+(` +
	money.German.CurrencyPattern() + `)` + currencyTail + taxCodeTail + `$`)

// WholesaleParser reads cash-and-carry invoices. Rows carry an article
// number, quantity, unit price and total; long names wrap onto the next
// lines and an MHD line may follow.
type WholesaleParser struct{}

// NewWholesaleParser creates a wholesale parser
func NewWholesaleParser() *WholesaleParser {
	return &WholesaleParser{}
}

// Format returns the layout key
func (p *WholesaleParser) Format() model.Format {
	return model.FormatWholesale
}

// Locale returns the German amount convention
func (p *WholesaleParser) Locale() money.Locale {
	return money.German
}

// Parse reads the invoice lines
func (p *WholesaleParser) Parse(lines []model.ClassifiedLine) *model.ParseResult {
	c := newCollector(p.Format(), p.Locale(), dateGerman)
	var items []model.ParsedItem

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line.Kind != model.LineItem {
			c.handle(line)
			continue
		}

		m := wholesaleItem.FindStringSubmatch(line.Text)
		if m == nil {
			c.fail(line, "item", "unrecognized item layout", nil)
			continue
		}
		qty, err := strconv.Atoi(m[3])
		if err != nil {
			c.fail(line, "quantity", "unreadable quantity", err)
			continue
		}
		unit, err := money.ParseAmount(m[4], money.German)
		if err != nil {
			c.fail(line, "unit_price", "unreadable amount", err)
			continue
		}
		total, err := money.ParseAmount(m[5], money.German)
		if err != nil {
			c.fail(line, "total_price", "unreadable amount", err)
			continue
		}

		name := m[2]
		next, bestBefore := wrapTail(c, lines, i, !hasLower(name), &name)
		i = next

		if total.IsNegative() {
			// returned deposit or credit row
			c.meta.AddPriceReduction(total)
			continue
		}

		item, ok := newItem(name, qty, &unit, total, line.Number)
		if !ok {
			c.fail(line, "quantity", "quantity times unit price does not match total", nil)
			continue
		}
		item.ArticleNumber = m[1]
		item.BestBefore = bestBefore
		items = append(items, item)
	}
	return c.result(items)
}

// wrapTail scans the lookahead window after the item at i, appending
// wrapped name lines to name and picking up a best-before date. It returns
// the index of the last consumed line. Names printed in capitals only take
// continuation lines in capitals.
func wrapTail(c *collector, lines []model.ClassifiedLine, i int, upper bool, name *string) (int, *time.Time) {
	last := i
	var bestBefore *time.Time
	for j := i + 1; j <= i+lookahead && j < len(lines); j++ {
		l := lines[j]
		if d, ok := c.bestBefore(l); ok {
			bestBefore = d
			last = j
			continue
		}
		if name != nil && l.Kind == model.LineUnknown && isNameText(l.Text) && (!upper || !hasLower(l.Text)) {
			*name += " " + l.Text
			last = j
			continue
		}
		break
	}
	return last, bestBefore
}
