package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/stock-intake/internal/model"
)

func TestInvoice_CalculateTotals(t *testing.T) {
	inv := model.Invoice{
		Lines: []model.InvoiceLine{
			{ProductName: "COLA", Quantity: 2, TotalPrice: decimal.RequireFromString("1.18")},
			{ProductName: "BROT", Quantity: 1, TotalPrice: decimal.RequireFromString("1.49")},
		},
		AdditionalCosts: decimal.RequireFromString("4.90"),
		PriceReduction:  decimal.RequireFromString("0.45"),
	}

	inv.CalculateTotals()

	assert.True(t, inv.Subtotal.Equal(decimal.RequireFromString("2.67")),
		"Expected subtotal 2.67, got %s", inv.Subtotal.String())
	// 2.67 + 4.90 - 0.45
	assert.True(t, inv.Total.Equal(decimal.RequireFromString("7.12")),
		"Expected total 7.12, got %s", inv.Total.String())
}

func TestInvoice_CalculateTotalsEmpty(t *testing.T) {
	var inv model.Invoice
	inv.CalculateTotals()
	assert.True(t, inv.Subtotal.IsZero())
	assert.True(t, inv.Total.IsZero())
}

func TestInvoiceMetadata_Accumulators(t *testing.T) {
	var meta model.InvoiceMetadata

	meta.AddPriceReduction(decimal.RequireFromString("-0.20"))
	meta.AddPriceReduction(decimal.RequireFromString("0.10"))
	require.NotNil(t, meta.PriceReduction)
	assert.True(t, meta.PriceReduction.Equal(decimal.RequireFromString("0.30")))

	meta.AddAdditionalCosts(decimal.RequireFromString("4.90"))
	meta.AddAdditionalCosts(decimal.RequireFromString("1.10"))
	require.NotNil(t, meta.AdditionalCosts)
	assert.True(t, meta.AdditionalCosts.Equal(decimal.NewFromInt(6)))

	meta.AppendNote("")
	assert.Nil(t, meta.Notes)
	meta.AppendNote("leave at the back door")
	meta.AppendNote("ring twice")
	require.NotNil(t, meta.Notes)
	assert.Equal(t, "leave at the back door\nring twice", *meta.Notes)
}

func TestParseResult_Warnings(t *testing.T) {
	res := model.ParseResult{}
	assert.Nil(t, res.Warnings())

	res.LineErrors = []*model.ParseError{
		model.NewParseError(model.FormatWebshop, 7, "item", "unrecognized item layout", model.ErrUnparseableLine),
	}
	assert.Equal(t, []string{"[webshop:7] item: unrecognized item layout (unparseable line)"}, res.Warnings())
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected model.Format
	}{
		{"receipt", model.FormatReceipt},
		{" Wholesale ", model.FormatWholesale},
		{"WEBSHOP", model.FormatWebshop},
		{"fax", model.Format("fax")},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, model.ParseFormat(tt.input))
		})
	}
}

func TestLineKind_String(t *testing.T) {
	assert.Equal(t, "item", model.LineItem.String())
	assert.Equal(t, "tax_summary", model.LineTaxSummary.String())
	assert.Equal(t, "unknown", model.LineUnknown.String())

	text, err := model.LineDiscount.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "discount", string(text))
}

func TestEventType_Effect(t *testing.T) {
	tests := []struct {
		typ     model.EventType
		storage int
		shelf   int
	}{
		{model.AddedToStorage, 5, 0},
		{model.AddedToShelf, 0, 5},
		{model.MovedToShelf, -5, 5},
		{model.MovedFromShelf, 5, -5},
		{model.RemovedFromStorage, -5, 0},
		{model.RemovedFromShelf, 0, -5},
		{model.Consumed, 0, -5},
	}
	require.Len(t, tests, len(model.EventTypes))

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			storage, shelf, ok := tt.typ.Effect(5)
			require.True(t, ok)
			assert.Equal(t, tt.storage, storage)
			assert.Equal(t, tt.shelf, shelf)
		})
	}

	_, _, ok := model.EventType("Stolen").Effect(5)
	assert.False(t, ok)
}

func TestEventType_IsShelving(t *testing.T) {
	assert.True(t, model.MovedToShelf.IsShelving())
	assert.True(t, model.AddedToShelf.IsShelving())
	assert.False(t, model.AddedToStorage.IsShelving())
	assert.False(t, model.Consumed.IsShelving())
}

func TestStock(t *testing.T) {
	s := model.Stock{Storage: 3, Shelf: 4}
	assert.Equal(t, 7, s.Total())
	assert.False(t, s.Negative())
	assert.True(t, model.Stock{Storage: -1}.Negative())
	assert.True(t, model.Stock{Shelf: -1}.Negative())
}

func TestDateOnly(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	ts := time.Date(2024, 12, 31, 23, 30, 0, 0, berlin)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), model.DateOnly(ts))
}

func TestMatched(t *testing.T) {
	entry := model.CatalogEntry{ID: 42, Name: "Coca Cola 0,33l"}
	res := model.Matched(entry, model.MatchExact, 1)
	require.NotNil(t, res.ProductID)
	assert.Equal(t, int64(42), *res.ProductID)
	require.NotNil(t, res.ProductName)
	assert.Equal(t, "Coca Cola 0,33l", *res.ProductName)

	// the result does not alias the entry
	entry.ID = 7
	assert.Equal(t, int64(42), *res.ProductID)

	none := model.NoMatch()
	assert.Equal(t, model.MatchNone, none.Type)
	assert.Nil(t, none.ProductID)
	assert.Zero(t, none.Confidence)
}

func TestErrors(t *testing.T) {
	perr := model.NewParseError(model.FormatReceipt, 0, "format", "no parser", model.ErrUnknownFormat)
	assert.Equal(t, "[receipt] format: no parser (unknown invoice format)", perr.Error())
	assert.True(t, errors.Is(perr, model.ErrUnknownFormat))

	verr := model.NewValidationError("quantity", 0, "gt=0", "must be positive")
	assert.Contains(t, verr.Error(), "validation failed on quantity")
	assert.Contains(t, verr.Error(), "rule=gt=0")

	ev := model.ShelvingEvent{BatchID: uuid.New(), Type: model.Consumed, Quantity: 3}
	serr := model.NewStockError(ev, model.Stock{Storage: 0, Shelf: -1}, model.ErrInsufficientStock)
	assert.True(t, errors.Is(serr, model.ErrInsufficientStock))
	assert.Contains(t, serr.Error(), "Consumed 3 rejected (storage=0, shelf=-1)")

	var target *model.StockError
	require.True(t, errors.As(error(serr), &target))
	assert.Equal(t, ev.BatchID, target.BatchID)
}
