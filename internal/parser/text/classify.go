package text

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rezonia/stock-intake/internal/model"
)

// Line-shape anchors. Keywords are German first since most supplier
// layouts are German, with the English equivalents webshops print.
var (
	footerPattern = regexp.MustCompile(`(?i)^(?:zwischensumme|summe|zu zahlen|gesamt(?:betrag|summe)?|endbetrag|subtotal|total|kartenzahlung|ec-karte|r[üu]ckgeld|vielen dank|danke|unterschrift|ust-?id(?:nr)?|steuer-?nr|signatur|tse)\b`)
	// payment words that also start product names (BAR SCHOKOLADE)
	paymentPattern = regexp.MustCompile(`(?i)^(?:bar|gegeben)\b`)

	taxRatePattern   = regexp.MustCompile(`(\d{1,2}(?:[.,]\d{1,2})?)\s*%`)
	taxWordPattern   = regexp.MustCompile(`(?i)\b(?:mwst|ust|steuer|vat|tax)\b`)
	taxColumnPattern = regexp.MustCompile(`(?i)\b(?:netto|brutto|net|gross)\b`)

	discountPattern = regexp.MustCompile(`(?i)(?:bonus|rabatt|preisvorteil|nachlass|coupon|gutschein|skonto|discount|aktion)`)

	// a leading article number or a "2 x" column marks an item row
	articleLeadPattern = regexp.MustCompile(`^\d{4,}\s+\S*\pL`)
	qtyColumnPattern   = regexp.MustCompile(`(?i)(?:^|\s)\d+\s*(?:stk\.?\s*)?[x×]\s*(?:[-+]?\d|\pL)`)

	metadataPattern = regexp.MustCompile(`(?i)^(?:rechnungs?|beleg|bon-?nr|invoice|order|bestell(?:ung|nummer|-?nr)?|datum|date|lieferant|supplier|seller|verk[äa]ufer|kunde|kunden-?nr|filiale|markt|hinweis|note|mhd|best before|versand(?:kosten)?|fracht(?:kosten)?|shipping)\b`)

	currencyToken = regexp.MustCompile(`^[-+]?\d{1,3}(?:[.,]\d{3})*[.,]\d{2}-?$|^[-+]?\d+[.,]\d{2}-?$`)
)

// Classify splits raw invoice text into classified lines. Blank lines are
// dropped but every line keeps its physical line number.
func Classify(raw string) []model.ClassifiedLine {
	physical := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	lines := make([]model.ClassifiedLine, 0, len(physical))
	for i, l := range physical {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		lines = append(lines, model.ClassifiedLine{
			Number: i + 1,
			Text:   t,
			Kind:   ClassifyLine(t),
		})
	}
	return lines
}

// ClassifyLine assigns a shape to a single trimmed line
func ClassifyLine(t string) model.LineKind {
	switch {
	case isFooter(t):
		return model.LineSignature
	case isTaxSummary(t):
		return model.LineTaxSummary
	case isDiscount(t):
		return model.LineDiscount
	case metadataPattern.MatchString(t):
		return model.LineMetadata
	case isItemShaped(t):
		return model.LineItem
	default:
		return model.LineUnknown
	}
}

func isFooter(t string) bool {
	if footerPattern.MatchString(t) {
		return true
	}
	loc := paymentPattern.FindStringIndex(t)
	return loc != nil && !hasNameWord(t[loc[1]:])
}

// hasItemColumns reports whether t carries an article number or a
// quantity column, which only item rows print.
func hasItemColumns(t string) bool {
	return articleLeadPattern.MatchString(t) || qtyColumnPattern.MatchString(t)
}

// isTaxSummary wants a rate followed by net, tax and gross, or a tax
// table header. Rates inside product names (MILCH 3,5%) have fewer
// figures behind them.
func isTaxSummary(t string) bool {
	if hasItemColumns(t) {
		return false
	}
	if loc := taxRatePattern.FindStringIndex(t); loc != nil {
		if countAmounts(t[loc[1]:]) >= 3 {
			return true
		}
	}
	return taxWordPattern.MatchString(t) && taxColumnPattern.MatchString(t)
}

// isDiscount accepts a keyword line with a negative amount, or one whose
// words are all discount keywords. BONUS RIEGEL 0,99 is a product.
func isDiscount(t string) bool {
	if countAmounts(t) == 0 || hasItemColumns(t) || !discountPattern.MatchString(t) {
		return false
	}
	if hasNegativeAmount(t) {
		return true
	}
	for _, f := range stripTrailers(strings.Fields(t)) {
		if countLetters([]string{f}) > 0 && !discountPattern.MatchString(f) {
			return false
		}
	}
	return true
}

func hasNegativeAmount(t string) bool {
	for _, f := range strings.Fields(t) {
		f = trimCurrency(f)
		if currencyToken.MatchString(f) && (strings.HasPrefix(f, "-") || strings.HasSuffix(f, "-")) {
			return true
		}
	}
	return false
}

// hasNameWord reports whether t has a word of three or more letters other
// than a currency word
func hasNameWord(t string) bool {
	for _, f := range stripCurrencyWords(strings.Fields(t)) {
		if f != "EUR" && countLetters([]string{f}) >= 3 {
			return true
		}
	}
	return false
}

func isItemShaped(t string) bool {
	fields := stripTrailers(strings.Fields(t))
	if len(fields) < 2 {
		return false
	}
	if !currencyToken.MatchString(fields[len(fields)-1]) {
		return false
	}
	return countLetters(fields[:len(fields)-1]) >= 2
}

// stripTrailers drops currency words and one trailing tax code
func stripTrailers(fields []string) []string {
	fields = stripCurrencyWords(fields)
	if n := len(fields); n > 1 && isTaxCode(fields[n-1]) {
		fields = fields[:n-1]
	}
	return stripCurrencyWords(fields)
}

func stripCurrencyWords(fields []string) []string {
	for len(fields) > 0 {
		last := fields[len(fields)-1]
		if last != "EUR" && last != "€" {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return fields
}

func isTaxCode(f string) bool {
	if len(f) != 1 {
		return false
	}
	switch f[0] {
	case 'A', 'B', 'C', 'D', '1', '2', '*':
		return true
	}
	return false
}

func countLetters(fields []string) int {
	n := 0
	for _, f := range fields {
		for _, r := range f {
			if unicode.IsLetter(r) {
				n++
			}
		}
	}
	return n
}

func countAmounts(t string) int {
	n := 0
	for _, f := range strings.Fields(t) {
		if currencyToken.MatchString(trimCurrency(f)) {
			n++
		}
	}
	return n
}

func trimCurrency(f string) string {
	f = strings.TrimPrefix(f, "€")
	f = strings.TrimSuffix(f, "€")
	f = strings.TrimSuffix(f, "EUR")
	return f
}
