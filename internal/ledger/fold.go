package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rezonia/stock-intake/internal/model"
)

// week is the unit of ShelvingRate
const week = 7 * 24 * time.Hour

// ordered returns a copy of events sorted by OccurredAt. The sort is
// stable, so events sharing a timestamp keep their append order.
func ordered(events []model.ShelvingEvent) []model.ShelvingEvent {
	out := make([]model.ShelvingEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

// Fold derives the on-hand stock of a batch from its events. Events with
// an unknown type contribute nothing.
func Fold(events []model.ShelvingEvent) model.Stock {
	var s model.Stock
	for _, ev := range ordered(events) {
		storage, shelf, _ := ev.Type.Effect(ev.Quantity)
		s.Storage += storage
		s.Shelf += shelf
	}
	return s
}

// Replay folds events like Fold but stops at the first malformed event or
// the first prefix that leaves a counter negative.
func Replay(events []model.ShelvingEvent) (model.Stock, error) {
	var s model.Stock
	for _, ev := range ordered(events) {
		if err := Validate(ev); err != nil {
			return s, model.NewStockError(ev, s, err)
		}
		storage, shelf, _ := ev.Type.Effect(ev.Quantity)
		s.Storage += storage
		s.Shelf += shelf
		if s.Negative() {
			return s, model.NewStockError(ev, s, model.ErrInsufficientStock)
		}
	}
	return s, nil
}

// Validate checks the fields every event needs
func Validate(ev model.ShelvingEvent) error {
	var verr *model.ValidationError
	switch _, _, known := ev.Type.Effect(1); {
	case ev.BatchID == uuid.Nil:
		verr = model.NewValidationError("batch_id", nil, "required", "event has no batch")
	case !known:
		verr = model.NewValidationError("type", ev.Type, "oneof", "unknown event type")
	case ev.Quantity <= 0:
		verr = model.NewValidationError("quantity", ev.Quantity, "gt=0", "quantity must be positive")
	case ev.OccurredAt.IsZero():
		verr = model.NewValidationError("occurred_at", nil, "required", "event has no timestamp")
	default:
		return nil
	}
	return fmt.Errorf("%w: %w", model.ErrMalformedEvent, verr)
}

// ShelvingRate is the quantity put onto shelves per week, measured between
// the first and last shelving event. Fewer than two shelving events or a
// zero time span give 0.
func ShelvingRate(events []model.ShelvingEvent) float64 {
	var (
		total       int
		count       int
		first, last time.Time
	)
	for _, ev := range ordered(events) {
		if !ev.Type.IsShelving() || ev.Quantity <= 0 {
			continue
		}
		if count == 0 {
			first = ev.OccurredAt
		}
		last = ev.OccurredAt
		total += ev.Quantity
		count++
	}
	span := last.Sub(first)
	if count < 2 || span <= 0 {
		return 0
	}
	return float64(total) / (float64(span) / float64(week))
}
