package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/model"
)

// DefaultClockSkew is how far in the future an event timestamp may lie
const DefaultClockSkew = 5 * time.Minute

// Ledger admits shelving events so that no batch ever folds to negative
// stock. Appends to one batch are serialized through the Locker; other
// batches proceed in parallel.
type Ledger struct {
	store  Store
	locker Locker
	now    func() time.Time
	skew   time.Duration
	log    zerolog.Logger
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLocker replaces the in-process locker, e.g. with a RedisLocker
func WithLocker(l Locker) Option {
	return func(lg *Ledger) { lg.locker = l }
}

// WithClock sets the time source used for future-timestamp checks
func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) { lg.now = now }
}

// WithClockSkew sets how far ahead of now an event may be stamped
func WithClockSkew(d time.Duration) Option {
	return func(lg *Ledger) { lg.skew = d }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(lg *Ledger) { lg.log = l }
}

// New creates a ledger over store
func New(store Store, opts ...Option) *Ledger {
	lg := &Ledger{
		store:  store,
		locker: NewKeyedMutex(),
		now:    time.Now,
		skew:   DefaultClockSkew,
		log:    logger.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

func unavailable(op string, err error) error {
	if errors.Is(err, model.ErrLedgerUnavailable) || errors.Is(err, model.ErrBatchNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrLedgerUnavailable, op, err)
}

// TryAppend appends ev if the batch stays non-negative with it. On success
// ev carries its ID and Seq. A rejected event leaves the ledger unchanged.
func (l *Ledger) TryAppend(ctx context.Context, ev *model.ShelvingEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if err := Validate(*ev); err != nil {
		return model.NewStockError(*ev, model.Stock{}, err)
	}
	if limit := l.now().Add(l.skew); ev.OccurredAt.After(limit) {
		verr := model.NewValidationError("occurred_at", ev.OccurredAt, "lte_now", "event is stamped in the future")
		return model.NewStockError(*ev, model.Stock{}, fmt.Errorf("%w: %w", model.ErrMalformedEvent, verr))
	}

	unlock, err := l.locker.Lock(ctx, ev.BatchID.String())
	if err != nil {
		return unavailable("lock batch", err)
	}
	defer unlock()

	if _, err := l.store.Batch(ctx, ev.BatchID); err != nil {
		return unavailable("load batch", err)
	}
	existing, err := l.store.Events(ctx, ev.BatchID)
	if err != nil {
		return unavailable("load events", err)
	}

	stock, err := Replay(append(existing, *ev))
	if err != nil {
		l.rejected(ev, err)
		return err
	}

	if err := l.store.Append(ctx, ev); err != nil {
		if errors.Is(err, model.ErrInsufficientStock) || errors.Is(err, model.ErrMalformedEvent) {
			// another process appended to the batch since we read it
			l.rejected(ev, err)
			return err
		}
		return unavailable("append event", err)
	}
	l.log.Debug().
		Str("batch_id", ev.BatchID.String()).
		Str("type", string(ev.Type)).
		Int("quantity", ev.Quantity).
		Int("storage", stock.Storage).
		Int("shelf", stock.Shelf).
		Int64("seq", ev.Seq).
		Msg("event appended")
	return nil
}

func (l *Ledger) rejected(ev *model.ShelvingEvent, err error) {
	l.log.Warn().
		Err(err).
		Str("batch_id", ev.BatchID.String()).
		Str("type", string(ev.Type)).
		Int("quantity", ev.Quantity).
		Msg("event rejected")
}

// Receive books qty units of a product into storage. The units join the
// open batch with the same best-before date, or a new batch when there is
// none. A batch is open while it holds stock or has no events yet.
func (l *Ledger) Receive(ctx context.Context, productID int64, bestBefore time.Time, qty int, occurredAt time.Time, source *uuid.UUID) (*model.ShelvingEvent, error) {
	day := model.DateOnly(bestBefore)
	unlock, err := l.locker.Lock(ctx, fmt.Sprintf("product:%d:%s", productID, day.Format("2006-01-02")))
	if err != nil {
		return nil, unavailable("lock product", err)
	}
	defer unlock()

	batch, err := l.openBatch(ctx, productID, day)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		batch = &model.Batch{
			ID:         uuid.New(),
			ProductID:  productID,
			BestBefore: day,
			CreatedAt:  l.now().UTC(),
		}
		if err := l.store.CreateBatch(ctx, batch); err != nil {
			return nil, unavailable("create batch", err)
		}
		l.log.Info().
			Int64("product_id", productID).
			Str("batch_id", batch.ID.String()).
			Time("best_before", day).
			Msg("batch created")
	}

	ev := &model.ShelvingEvent{
		BatchID:             batch.ID,
		Type:                model.AddedToStorage,
		Quantity:            qty,
		OccurredAt:          occurredAt,
		SourceInvoiceItemID: source,
	}
	if err := l.TryAppend(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (l *Ledger) openBatch(ctx context.Context, productID int64, day time.Time) (*model.Batch, error) {
	batches, err := l.store.BatchesByProduct(ctx, productID)
	if err != nil {
		return nil, unavailable("list batches", err)
	}
	for i := range batches {
		b := batches[i]
		if !model.DateOnly(b.BestBefore).Equal(day) {
			continue
		}
		events, err := l.store.Events(ctx, b.ID)
		if err != nil {
			return nil, unavailable("load events", err)
		}
		if len(events) == 0 || Fold(events).Total() > 0 {
			return &b, nil
		}
	}
	return nil, nil
}

// Events returns a batch's events in append order
func (l *Ledger) Events(ctx context.Context, batchID uuid.UUID) ([]model.ShelvingEvent, error) {
	if _, err := l.store.Batch(ctx, batchID); err != nil {
		return nil, unavailable("load batch", err)
	}
	events, err := l.store.Events(ctx, batchID)
	if err != nil {
		return nil, unavailable("load events", err)
	}
	return events, nil
}

// BatchStock folds one batch
func (l *Ledger) BatchStock(ctx context.Context, batchID uuid.UUID) (model.BatchStock, error) {
	b, err := l.store.Batch(ctx, batchID)
	if err != nil {
		return model.BatchStock{}, unavailable("load batch", err)
	}
	events, err := l.store.Events(ctx, batchID)
	if err != nil {
		return model.BatchStock{}, unavailable("load events", err)
	}
	return model.BatchStock{Batch: *b, Stock: Fold(events)}, nil
}

// ProductStock folds every batch of a product, earliest best-before first
func (l *Ledger) ProductStock(ctx context.Context, productID int64) (model.ProductStock, error) {
	ps := model.ProductStock{ProductID: productID}
	_, err := l.eachBatch(ctx, productID, func(b model.Batch, events []model.ShelvingEvent) {
		s := Fold(events)
		ps.TotalStorage += s.Storage
		ps.TotalShelf += s.Shelf
		ps.Batches = append(ps.Batches, model.BatchStock{Batch: b, Stock: s})
	})
	if err != nil {
		return model.ProductStock{}, err
	}
	sort.SliceStable(ps.Batches, func(i, j int) bool {
		return ps.Batches[i].Batch.BestBefore.Before(ps.Batches[j].Batch.BestBefore)
	})
	return ps, nil
}

// ShelvingRate is the weekly shelving rate of a product across its batches
func (l *Ledger) ShelvingRate(ctx context.Context, productID int64) (float64, error) {
	var all []model.ShelvingEvent
	if _, err := l.eachBatch(ctx, productID, func(_ model.Batch, events []model.ShelvingEvent) {
		all = append(all, events...)
	}); err != nil {
		return 0, err
	}
	return ShelvingRate(all), nil
}

func (l *Ledger) eachBatch(ctx context.Context, productID int64, fn func(model.Batch, []model.ShelvingEvent)) (int, error) {
	batches, err := l.store.BatchesByProduct(ctx, productID)
	if err != nil {
		return 0, unavailable("list batches", err)
	}
	for _, b := range batches {
		events, err := l.store.Events(ctx, b.ID)
		if err != nil {
			return 0, unavailable("load events", err)
		}
		fn(b, events)
	}
	return len(batches), nil
}
