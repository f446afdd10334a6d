package text

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/stock-intake/internal/decimal"
	"github.com/rezonia/stock-intake/internal/model"
)

var (
	webshopItem = regexp.MustCompile(`^(?:(\d{4,})\s+)?(.+?)\s+(\d+)\s*[xX]\s*(` + money.Dotted.Pattern() + `)` +
		currencyTail + `\s+(` + money.Dotted.CurrencyPattern() + `)` + currencyTail + `$`)
	webshopCount = regexp.MustCompile(`^(\d+)\s*[xX]\s+(.+?)\s+(` + money.Dotted.CurrencyPattern() + `)` + currencyTail + `$`)
)

// errCreditLine marks a row with a negative total, which is a refund
// and not an item
var errCreditLine = errors.New("credit line")

// WebshopParser reads online order confirmations, which print dotted
// decimals and ISO dates.
type WebshopParser struct{}

// NewWebshopParser creates a webshop parser
func NewWebshopParser() *WebshopParser {
	return &WebshopParser{}
}

// Format returns the layout key
func (p *WebshopParser) Format() model.Format {
	return model.FormatWebshop
}

// Locale returns the dotted amount convention
func (p *WebshopParser) Locale() money.Locale {
	return money.Dotted
}

// Parse reads the order lines
func (p *WebshopParser) Parse(lines []model.ClassifiedLine) *model.ParseResult {
	c := newCollector(p.Format(), p.Locale(), dateISO)
	var items []model.ParsedItem

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line.Kind != model.LineItem {
			c.handle(line)
			continue
		}

		item, field, err := p.item(line)
		if errors.Is(err, errCreditLine) {
			c.meta.AddPriceReduction(item.TotalPrice)
			continue
		}
		if err != nil {
			c.fail(line, field, "unrecognized item layout", err)
			continue
		}
		next, bestBefore := wrapTail(c, lines, i, false, nil)
		i = next
		item.BestBefore = bestBefore
		items = append(items, item)
	}
	return c.result(items)
}

func (p *WebshopParser) item(line model.ClassifiedLine) (model.ParsedItem, string, error) {
	var (
		article, name, qtyText, totalText string
		unit                              *decimal.Decimal
	)
	if m := webshopItem.FindStringSubmatch(line.Text); m != nil {
		article, name, qtyText, totalText = m[1], m[2], m[3], m[5]
		u, err := money.ParseAmount(m[4], money.Dotted)
		if err != nil {
			return model.ParsedItem{}, "unit_price", err
		}
		unit = &u
	} else if m := webshopCount.FindStringSubmatch(line.Text); m != nil {
		qtyText, name, totalText = m[1], m[2], m[3]
	} else {
		return model.ParsedItem{}, "item", model.ErrUnparseableLine
	}

	qty, err := strconv.Atoi(qtyText)
	if err != nil {
		return model.ParsedItem{}, "quantity", err
	}
	total, err := money.ParseAmount(totalText, money.Dotted)
	if err != nil {
		return model.ParsedItem{}, "total_price", err
	}
	if total.IsNegative() {
		return model.ParsedItem{TotalPrice: total}, "", errCreditLine
	}
	item, ok := newItem(name, qty, unit, total, line.Number)
	if !ok {
		return model.ParsedItem{}, "quantity", model.ErrUnparseableLine
	}
	item.ArticleNumber = article
	return item, "", nil
}
