package model

// CatalogEntry is one product of the caller's catalog snapshot
type CatalogEntry struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Barcodes []string `json:"barcodes,omitempty"`
}

// MatchType tells which strategy produced a match
type MatchType string

const (
	MatchBarcode MatchType = "Barcode"
	MatchExact   MatchType = "Exact"
	MatchFuzzy   MatchType = "Fuzzy"
	MatchNone    MatchType = "None"
)

// MatchResult is the matcher's verdict for one parsed item
type MatchResult struct {
	ProductID   *int64    `json:"product_id,omitempty"`
	ProductName *string   `json:"product_name,omitempty"`
	Type        MatchType `json:"match_type"`
	Confidence  float64   `json:"confidence"`
}

// NoMatch is the result for items nothing in the catalog resembles
func NoMatch() MatchResult {
	return MatchResult{Type: MatchNone}
}

// Matched builds a result pointing at the given catalog entry
func Matched(entry CatalogEntry, typ MatchType, confidence float64) MatchResult {
	id := entry.ID
	name := entry.Name
	return MatchResult{
		ProductID:   &id,
		ProductName: &name,
		Type:        typ,
		Confidence:  confidence,
	}
}
