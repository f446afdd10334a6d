package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ParsedItem is one line item recognized on a supplier invoice
type ParsedItem struct {
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	ArticleNumber string          `json:"article_number,omitempty"`
	BestBefore    *time.Time      `json:"best_before,omitempty"`
	Line          int             `json:"line"`
}

// TaxRateLine is one row of an invoice's tax table. It is informational only.
type TaxRateLine struct {
	Rate  decimal.Decimal `json:"rate"`
	Net   decimal.Decimal `json:"net"`
	Tax   decimal.Decimal `json:"tax"`
	Gross decimal.Decimal `json:"gross"`
}

// InvoiceMetadata holds invoice-level fields. Nil means the layout did not
// expose the field and it is left for manual completion.
type InvoiceMetadata struct {
	InvoiceNumber   *string          `json:"invoice_number,omitempty"`
	InvoiceDate     *time.Time       `json:"invoice_date,omitempty"`
	Supplier        *string          `json:"supplier,omitempty"`
	TotalAmount     *decimal.Decimal `json:"total_amount,omitempty"`
	AdditionalCosts *decimal.Decimal `json:"additional_costs,omitempty"`
	PriceReduction  *decimal.Decimal `json:"price_reduction,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
	TaxRates        []TaxRateLine    `json:"tax_rates,omitempty"`
}

// AddPriceReduction accumulates a discount line into the invoice-level reduction
func (m *InvoiceMetadata) AddPriceReduction(amount decimal.Decimal) {
	amount = amount.Abs()
	if m.PriceReduction == nil {
		m.PriceReduction = &amount
		return
	}
	sum := m.PriceReduction.Add(amount)
	m.PriceReduction = &sum
}

// AddAdditionalCosts accumulates freight or shipping charges
func (m *InvoiceMetadata) AddAdditionalCosts(amount decimal.Decimal) {
	if m.AdditionalCosts == nil {
		m.AdditionalCosts = &amount
		return
	}
	sum := m.AdditionalCosts.Add(amount)
	m.AdditionalCosts = &sum
}

// AppendNote adds a line of free text to Notes
func (m *InvoiceMetadata) AppendNote(note string) {
	if note == "" {
		return
	}
	if m.Notes == nil {
		m.Notes = &note
		return
	}
	joined := *m.Notes + "\n" + note
	m.Notes = &joined
}

// ParseResult is the best-effort outcome of parsing one invoice text
type ParseResult struct {
	Success      bool             `json:"success"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Format       Format           `json:"format"`
	Items        []ParsedItem     `json:"items"`
	Metadata     *InvoiceMetadata `json:"metadata,omitempty"`
	LineErrors   []*ParseError    `json:"-"`
}

// Warnings renders the skipped-line diagnostics as strings
func (r *ParseResult) Warnings() []string {
	if len(r.LineErrors) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.LineErrors))
	for _, e := range r.LineErrors {
		out = append(out, e.Error())
	}
	return out
}

// AnnotatedItem pairs a parsed item with its catalog match
type AnnotatedItem struct {
	Item  ParsedItem  `json:"item"`
	Match MatchResult `json:"match"`
}

// Selection is the caller's review decision for one annotated item
type Selection struct {
	Index      int        `json:"index"`
	ProductID  *int64     `json:"product_id,omitempty"`
	BestBefore *time.Time `json:"best_before,omitempty"`
	ToStock    bool       `json:"to_stock"`
}

// Invoice is the assembled supplier invoice handed to persistence
type Invoice struct {
	ID              uuid.UUID       `json:"id"`
	Number          *string         `json:"number,omitempty"`
	Date            *time.Time      `json:"date,omitempty"`
	Supplier        *string         `json:"supplier,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	Lines           []InvoiceLine   `json:"lines"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	AdditionalCosts decimal.Decimal `json:"additional_costs"`
	PriceReduction  decimal.Decimal `json:"price_reduction"`
	Total           decimal.Decimal `json:"total"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InvoiceLine is a committed invoice item
type InvoiceLine struct {
	ID            uuid.UUID       `json:"id"`
	ProductID     *int64          `json:"product_id,omitempty"`
	ProductName   string          `json:"product_name"`
	ArticleNumber string          `json:"article_number,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	BestBefore    *time.Time      `json:"best_before,omitempty"`
	MatchType     MatchType       `json:"match_type"`
	Confidence    float64         `json:"confidence"`
	Stocked       bool            `json:"stocked"`
}

// CalculateTotals recomputes Subtotal and Total from the lines
func (inv *Invoice) CalculateTotals() {
	subtotal := decimal.Zero
	for _, l := range inv.Lines {
		subtotal = subtotal.Add(l.TotalPrice)
	}
	inv.Subtotal = subtotal
	inv.Total = subtotal.Add(inv.AdditionalCosts).Sub(inv.PriceReduction)
}
