package matcher_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/stock-intake/internal/matcher"
	"github.com/rezonia/stock-intake/internal/model"
)

func item(name string) model.ParsedItem {
	return model.ParsedItem{ProductName: name, Quantity: 1}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Chips   SALT ", "chips salt"},
		{"ＣＯＬＡ", "cola"},
		{"ﬁlet", "filet"},
		{"Coca\tCola\n0,33L", "coca cola 0,33l"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, matcher.Normalize(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, matcher.Similarity("cola", "cola"))
	assert.Equal(t, 1.0, matcher.Similarity("", ""))
	assert.Equal(t, 0.75, matcher.Similarity("abcd", "abce"))
	assert.Equal(t, 0.5, matcher.Similarity("abcd", "abef"))
	assert.InDelta(t, 4.0/7.0, matcher.Similarity("kitten", "sitting"), 1e-9)
	assert.Equal(t, 0.0, matcher.Similarity("abc", ""))
}

func TestMatch_Exact(t *testing.T) {
	m := matcher.New()
	catalog := []model.CatalogEntry{
		{ID: 2, Name: "Chips Paprika"},
		{ID: 1, Name: "Chips Salt"},
	}

	res := m.Match(item("  chips   SALT "), catalog)
	assert.Equal(t, model.MatchExact, res.Type)
	require.NotNil(t, res.ProductID)
	assert.Equal(t, int64(1), *res.ProductID)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestMatch_ExactBeatsLongerNameInEitherOrder(t *testing.T) {
	salt := model.CatalogEntry{ID: 1, Name: "Chips Salt"}
	salted := model.CatalogEntry{ID: 2, Name: "Chips Salted"}

	tests := []struct {
		name    string
		catalog []model.CatalogEntry
	}{
		{"shorter first", []model.CatalogEntry{salt, salted}},
		{"longer first", []model.CatalogEntry{salted, salt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := matcher.New().Match(item("Chips Salt "), tt.catalog)
			assert.Equal(t, model.MatchExact, res.Type)
			require.NotNil(t, res.ProductID)
			assert.Equal(t, int64(1), *res.ProductID)
			assert.Equal(t, 1.0, res.Confidence)
		})
	}
}

func TestMatch_ExactTieGoesToLowestID(t *testing.T) {
	m := matcher.New()
	catalog := []model.CatalogEntry{
		{ID: 8, Name: "Chips Salt"},
		{ID: 3, Name: "CHIPS SALT"},
	}

	res := m.Match(item("Chips Salt"), catalog)
	assert.Equal(t, model.MatchExact, res.Type)
	assert.Equal(t, int64(3), *res.ProductID)
}

func TestMatch_BarcodeBeatsExact(t *testing.T) {
	m := matcher.New()
	catalog := []model.CatalogEntry{
		{ID: 2, Name: "COCA COLA"},
		{ID: 5, Name: "Cola Dose", Barcodes: []string{"4001234"}},
		{ID: 4, Name: "Cola Dose 0,33", Barcodes: []string{" 4001234 "}},
	}

	it := item("COCA COLA")
	it.ArticleNumber = "4001234"
	res := m.Match(it, catalog)
	assert.Equal(t, model.MatchBarcode, res.Type)
	assert.Equal(t, int64(4), *res.ProductID)
	assert.Equal(t, 1.0, res.Confidence)

	it.ArticleNumber = "9999999"
	res = m.Match(it, catalog)
	assert.Equal(t, model.MatchExact, res.Type)
	assert.Equal(t, int64(2), *res.ProductID)
}

func TestMatch_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		opts      []matcher.Option
		catalog   string
		expected  model.MatchType
		confidnce float64
	}{
		{"exactly at default threshold", nil, "abce", model.MatchFuzzy, 0.75},
		{"below default threshold", nil, "abef", model.MatchNone, 0},
		{"raised threshold", []matcher.Option{matcher.WithThreshold(0.8)}, "abce", model.MatchNone, 0},
		{"lowered threshold", []matcher.Option{matcher.WithThreshold(0.5)}, "abef", model.MatchFuzzy, 0.5},
		{"out of range threshold ignored", []matcher.Option{matcher.WithThreshold(1.5)}, "abce", model.MatchFuzzy, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matcher.New(tt.opts...)
			res := m.Match(item("abcd"), []model.CatalogEntry{{ID: 1, Name: tt.catalog}})
			assert.Equal(t, tt.expected, res.Type)
			assert.Equal(t, tt.confidnce, res.Confidence)
			if tt.expected == model.MatchNone {
				assert.Nil(t, res.ProductID)
				assert.Nil(t, res.ProductName)
			}
		})
	}
}

func TestMatch_FuzzyTieBreakIsOrderIndependent(t *testing.T) {
	m := matcher.New()
	shorter := model.CatalogEntry{ID: 9, Name: "abcdefg"}
	longer := model.CatalogEntry{ID: 1, Name: "abcdefgx"}
	sameLen := model.CatalogEntry{ID: 4, Name: "abcdefh"}

	orders := [][]model.CatalogEntry{
		{shorter, longer, sameLen},
		{longer, sameLen, shorter},
		{sameLen, shorter, longer},
	}
	for i, catalog := range orders {
		t.Run(fmt.Sprintf("order %d", i), func(t *testing.T) {
			res := m.Match(item("abcdefgh"), catalog)
			assert.Equal(t, model.MatchFuzzy, res.Type)
			// 7/8 for all three; the 7-rune names beat the 8-rune one and
			// the lower id wins between them
			assert.Equal(t, int64(4), *res.ProductID)
			assert.Equal(t, 0.875, res.Confidence)
		})
	}
}

func TestMatch_NoMatch(t *testing.T) {
	m := matcher.New()

	assert.Equal(t, model.MatchNone, m.Match(item("Cola"), nil).Type)
	assert.Equal(t, model.MatchNone, m.Match(item("   "), []model.CatalogEntry{{ID: 1, Name: ""}}).Type)
	assert.Equal(t, model.MatchNone, m.Match(item("Zahnpasta"), []model.CatalogEntry{{ID: 1, Name: "Cola"}}).Type)
}

func TestMatchAll_PreservesOrder(t *testing.T) {
	m := matcher.New(matcher.WithWorkers(3))
	catalog := make([]model.CatalogEntry, 0, 20)
	items := make([]model.ParsedItem, 0, 50)
	for i := 0; i < 20; i++ {
		catalog = append(catalog, model.CatalogEntry{ID: int64(i + 1), Name: fmt.Sprintf("Produkt %02d", i)})
	}
	for i := 0; i < 50; i++ {
		items = append(items, item(fmt.Sprintf("PRODUKT %02d", i%25)))
	}

	out, err := m.MatchAll(context.Background(), items, catalog)
	require.NoError(t, err)
	require.Len(t, out, len(items))

	for i, a := range out {
		assert.Equal(t, items[i].ProductName, a.Item.ProductName)
		if i%25 < 20 {
			assert.Equal(t, model.MatchExact, a.Match.Type)
			assert.Equal(t, int64(i%25+1), *a.Match.ProductID)
		}
	}
}

func TestMatchAll_Cancelled(t *testing.T) {
	m := matcher.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.MatchAll(ctx, []model.ParsedItem{item("Cola")}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchAll_Empty(t *testing.T) {
	out, err := matcher.New().MatchAll(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func BenchmarkMatch(b *testing.B) {
	m := matcher.New()
	catalog := make([]model.CatalogEntry, 0, 500)
	for i := 0; i < 500; i++ {
		catalog = append(catalog, model.CatalogEntry{ID: int64(i), Name: fmt.Sprintf("Artikel Nummer %d Sorte", i)})
	}
	it := item("ARTIKEL NUMER 250 SORTE")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Match(it, catalog)
	}
}
