package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of stock movement a shelving event records
type EventType string

const (
	AddedToStorage     EventType = "AddedToStorage"
	AddedToShelf       EventType = "AddedToShelf"
	MovedToShelf       EventType = "MovedToShelf"
	MovedFromShelf     EventType = "MovedFromShelf"
	RemovedFromStorage EventType = "RemovedFromStorage"
	RemovedFromShelf   EventType = "RemovedFromShelf"
	Consumed           EventType = "Consumed"
)

// EventTypes lists every known event type
var EventTypes = []EventType{
	AddedToStorage,
	AddedToShelf,
	MovedToShelf,
	MovedFromShelf,
	RemovedFromStorage,
	RemovedFromShelf,
	Consumed,
}

// Effect returns the signed change the event type applies to storage and
// shelf for a quantity q. ok is false for unknown types.
func (t EventType) Effect(q int) (storage, shelf int, ok bool) {
	switch t {
	case AddedToStorage:
		return q, 0, true
	case AddedToShelf:
		return 0, q, true
	case MovedToShelf:
		return -q, q, true
	case MovedFromShelf:
		return q, -q, true
	case RemovedFromStorage:
		return -q, 0, true
	case RemovedFromShelf, Consumed:
		return 0, -q, true
	default:
		return 0, 0, false
	}
}

// IsShelving reports whether the event puts goods onto the shelf
func (t EventType) IsShelving() bool {
	return t == MovedToShelf || t == AddedToShelf
}

// ShelvingEvent is an immutable ledger entry. Quantity is a magnitude; the
// direction comes from Type. Seq is the store's append order.
type ShelvingEvent struct {
	ID                  uuid.UUID  `json:"id"`
	BatchID             uuid.UUID  `json:"batch_id"`
	Type                EventType  `json:"type"`
	Quantity            int        `json:"quantity"`
	OccurredAt          time.Time  `json:"occurred_at"`
	SourceInvoiceItemID *uuid.UUID `json:"source_invoice_item_id,omitempty"`
	Seq                 int64      `json:"seq"`
}

// Batch groups stock of one product sharing a best-before date
type Batch struct {
	ID         uuid.UUID `json:"id"`
	ProductID  int64     `json:"product_id"`
	BestBefore time.Time `json:"best_before"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stock is the folded on-hand quantity of a batch
type Stock struct {
	Storage int `json:"quantity_in_storage"`
	Shelf   int `json:"quantity_on_shelf"`
}

// Total is storage plus shelf
func (s Stock) Total() int {
	return s.Storage + s.Shelf
}

// Negative reports whether either counter dropped below zero
func (s Stock) Negative() bool {
	return s.Storage < 0 || s.Shelf < 0
}

// BatchStock is the stock of one batch of a product
type BatchStock struct {
	Batch Batch `json:"batch"`
	Stock Stock `json:"stock"`
}

// ProductStock rolls up every batch of a product
type ProductStock struct {
	ProductID    int64        `json:"product_id"`
	TotalStorage int          `json:"total_in_storage"`
	TotalShelf   int          `json:"total_on_shelf"`
	Batches      []BatchStock `json:"batches"`
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
