package intakelib_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/stock-intake/pkg/intakelib"
)

const webshopOrder = `Order 4711 from 2024-03-05
POM.LEBERW.FEIN 1 x 1.19 1.19 EUR
Bonus-Aktion(en) 0.10 EUR
Total 1.09 EUR
`

func newProcessor() *intakelib.Processor {
	opts := intakelib.DefaultOptions()
	opts.Catalog = []intakelib.CatalogEntry{
		{ID: 11, Name: "Pom.Leberw.Fein"},
		{ID: 12, Name: "Snickers", Barcodes: []string{"5000159461122"}},
	}
	return intakelib.NewProcessor(opts)
}

func TestNewDefaultProcessor(t *testing.T) {
	proc := intakelib.NewDefaultProcessor()
	require.NotNil(t, proc)
}

func TestDefaultOptions(t *testing.T) {
	opts := intakelib.DefaultOptions()

	assert.Equal(t, 0.75, opts.MatchThreshold)
	assert.Equal(t, 0.90, opts.ReviewThreshold)
	assert.Equal(t, 4, opts.Workers)
	assert.Empty(t, opts.Catalog)
}

func TestProcessor_Process(t *testing.T) {
	result, err := newProcessor().Process(context.Background(), strings.NewReader(webshopOrder), intakelib.FormatWebshop)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	assert.Equal(t, intakelib.FormatWebshop, result.Format)
	assert.Equal(t, intakelib.MatchExact, result.Items[0].Match.Type)
	assert.Equal(t, int64(11), *result.Items[0].Match.ProductID)
	assert.Equal(t, "1.09", result.Metadata.TotalAmount.StringFixed(2))
	assert.False(t, result.NeedsReview)
}

func TestProcessor_ProcessUnknownFormat(t *testing.T) {
	_, err := newProcessor().Process(context.Background(), strings.NewReader(webshopOrder), intakelib.Format("fax"))
	require.Error(t, err)
	assert.ErrorIs(t, err, intakelib.ErrUnknownFormat)
}

func TestProcessor_ProcessNoItemsKeepsMetadata(t *testing.T) {
	result, err := newProcessor().Process(context.Background(),
		strings.NewReader("Order 4712 from 2024-03-06\nTotal 0.00 EUR\n"), intakelib.FormatWebshop)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Success)
	assert.Equal(t, intakelib.ErrNoItemsRecognized.Error(), result.ErrorMessage)
	assert.Empty(t, result.Items)
	require.NotNil(t, result.Metadata.InvoiceNumber)
	assert.Equal(t, "4712", *result.Metadata.InvoiceNumber)
}

func TestProcessor_ProcessBatch(t *testing.T) {
	results, err := newProcessor().ProcessBatch(context.Background(), []intakelib.Input{
		{Name: "a", Reader: strings.NewReader(webshopOrder), Format: intakelib.FormatWebshop},
		{Name: "b", Reader: strings.NewReader(""), Format: intakelib.FormatWebshop},
		{Name: "c", Reader: strings.NewReader(webshopOrder), Format: intakelib.Format("fax")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, intakelib.ErrUnknownFormat)
	require.Len(t, results, 3)
	require.NotNil(t, results[0])
	assert.True(t, results[0].Success)
	require.NotNil(t, results[1])
	assert.False(t, results[1].Success)
	assert.Nil(t, results[2])
}

func TestProcessor_Match(t *testing.T) {
	proc := newProcessor()

	m := proc.Match("Mars", "5000159461122")
	assert.Equal(t, intakelib.MatchBarcode, m.Type)
	assert.Equal(t, int64(12), *m.ProductID)

	m = proc.Match("Kaugummi", "")
	assert.Equal(t, intakelib.MatchNone, m.Type)
}

func TestProcessor_CommitAndStock(t *testing.T) {
	ctx := context.Background()
	proc := newProcessor()

	result, err := proc.Process(ctx, strings.NewReader(webshopOrder), intakelib.FormatWebshop)
	require.NoError(t, err)

	bb := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	inv, itemErrs, err := proc.Commit(ctx, result, []intakelib.Selection{
		{Index: 0, BestBefore: &bb, ToStock: true},
	})
	require.NoError(t, err)
	assert.Empty(t, itemErrs)
	assert.Equal(t, "1.09", inv.Total.StringFixed(2))

	stock, err := proc.Stock(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.TotalStorage)
	require.Len(t, stock.Batches, 1)

	_, err = proc.Move(ctx, stock.Batches[0].Batch.ID, intakelib.MovedToShelf, 2)
	assert.ErrorIs(t, err, intakelib.ErrInsufficientStock)

	_, err = proc.Move(ctx, stock.Batches[0].Batch.ID, intakelib.MovedToShelf, 1)
	require.NoError(t, err)

	stock, err = proc.Stock(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.TotalStorage)
	assert.Equal(t, 1, stock.TotalShelf)
}

func TestFold(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []intakelib.ShelvingEvent{
		{Type: intakelib.AddedToStorage, Quantity: 10, OccurredAt: t0, Seq: 1},
		{Type: intakelib.MovedToShelf, Quantity: 4, OccurredAt: t0.Add(time.Hour), Seq: 2},
		{Type: intakelib.Consumed, Quantity: 1, OccurredAt: t0.Add(2 * time.Hour), Seq: 3},
	}

	assert.Equal(t, intakelib.Stock{Storage: 6, Shelf: 3}, intakelib.Fold(events))
}
