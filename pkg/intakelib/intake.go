// Package intakelib provides a public API for turning supplier invoice text
// into catalog-matched items and per-batch stock.
//
// This package exposes the core types of the intake flow: parsing invoice
// text of a known supplier layout, matching items against a product catalog
// and folding shelving events into stock.
//
// Example usage:
//
//	proc := intakelib.NewProcessor(intakelib.DefaultOptions())
//	result, err := proc.Process(ctx, reader, intakelib.FormatReceipt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range result.Items {
//	    fmt.Println(a.Item.ProductName, a.Match.Type)
//	}
package intakelib

import (
	"github.com/rezonia/stock-intake/internal/ledger"
	"github.com/rezonia/stock-intake/internal/model"
)

// Re-export core types for public API
type (
	Format          = model.Format
	ParsedItem      = model.ParsedItem
	InvoiceMetadata = model.InvoiceMetadata
	ParseResult     = model.ParseResult
	CatalogEntry    = model.CatalogEntry
	MatchResult     = model.MatchResult
	MatchType       = model.MatchType
	AnnotatedItem   = model.AnnotatedItem
	Selection       = model.Selection
	Invoice         = model.Invoice
	InvoiceLine     = model.InvoiceLine
	ShelvingEvent   = model.ShelvingEvent
	EventType       = model.EventType
	Batch           = model.Batch
	Stock           = model.Stock
	ProductStock    = model.ProductStock
)

// Re-export format constants
const (
	FormatReceipt   = model.FormatReceipt
	FormatWholesale = model.FormatWholesale
	FormatWebshop   = model.FormatWebshop
)

// Re-export match types
const (
	MatchBarcode = model.MatchBarcode
	MatchExact   = model.MatchExact
	MatchFuzzy   = model.MatchFuzzy
	MatchNone    = model.MatchNone
)

// Re-export event types
const (
	AddedToStorage     = model.AddedToStorage
	AddedToShelf       = model.AddedToShelf
	MovedToShelf       = model.MovedToShelf
	MovedFromShelf     = model.MovedFromShelf
	RemovedFromStorage = model.RemovedFromStorage
	RemovedFromShelf   = model.RemovedFromShelf
	Consumed           = model.Consumed
)

// Re-export error types
type (
	ParseError      = model.ParseError
	ValidationError = model.ValidationError
	StockError      = model.StockError
)

// Re-export error kinds
var (
	ErrUnknownFormat     = model.ErrUnknownFormat
	ErrNoItemsRecognized = model.ErrNoItemsRecognized
	ErrInsufficientStock = model.ErrInsufficientStock
	ErrMalformedEvent    = model.ErrMalformedEvent
	ErrLedgerUnavailable = model.ErrLedgerUnavailable
)

// Fold computes the stock of one batch from its events
func Fold(events []ShelvingEvent) Stock {
	return ledger.Fold(events)
}

// Replay folds events and fails at the first prefix that goes negative
func Replay(events []ShelvingEvent) (Stock, error) {
	return ledger.Replay(events)
}

// ShelvingRate is the average number of units shelved per week
func ShelvingRate(events []ShelvingEvent) float64 {
	return ledger.ShelvingRate(events)
}
