package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	money "github.com/rezonia/stock-intake/internal/decimal"
	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/model"
)

// Per-item failures reported by Assemble
var (
	ErrSelectionOutOfRange = errors.New("selection index out of range")
	ErrDuplicateSelection  = errors.New("item selected twice")
	ErrNoProduct           = errors.New("no product assigned")
	ErrNoBestBefore        = errors.New("no best-before date")
)

// ItemError is a failure confined to one selected item
type ItemError struct {
	Index       int
	ProductName string
	Err         error
}

func (e *ItemError) Error() string {
	if e.ProductName == "" {
		return fmt.Sprintf("item %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.ProductName, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// InvoiceSink persists assembled invoices
type InvoiceSink interface {
	SaveInvoice(ctx context.Context, inv *model.Invoice) error
}

// StockMarker is implemented by sinks that record which lines were admitted
// to stock after the invoice was saved.
type StockMarker interface {
	MarkStocked(ctx context.Context, invoiceID uuid.UUID, lineIDs []uuid.UUID) error
}

// Receiver books delivered units into the stock ledger
type Receiver interface {
	Receive(ctx context.Context, productID int64, bestBefore time.Time, qty int, occurredAt time.Time, source *uuid.UUID) (*model.ShelvingEvent, error)
}

// Assembler turns reviewed items into a saved invoice and stock admissions
type Assembler struct {
	sink  InvoiceSink
	stock Receiver
	now   func() time.Time
	log   zerolog.Logger
}

// AssemblerOption configures an Assembler
type AssemblerOption func(*Assembler)

// WithAssemblerClock overrides time.Now for CreatedAt and event timestamps
func WithAssemblerClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// WithAssemblerLogger sets the logger
func WithAssemblerLogger(l zerolog.Logger) AssemblerOption {
	return func(a *Assembler) { a.log = l }
}

// NewAssembler creates an assembler. stock may be nil when nothing is ever
// committed to stock; ToStock selections then fail per item.
func NewAssembler(sink InvoiceSink, stock Receiver, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		sink:  sink,
		stock: stock,
		now:   time.Now,
		log:   logger.WithComponent("assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type pick struct {
	sel  model.Selection
	item model.AnnotatedItem
	line int
}

// Assemble builds the invoice from the selected items, saves it, then admits
// every ToStock line to the ledger. Problems with single items come back as
// ItemErrors and do not stop the rest. The returned error is set when the
// invoice could not be saved (invoice is nil) or when the ledger became
// unavailable part way through (invoice is non-nil and already saved).
func (a *Assembler) Assemble(ctx context.Context, meta *model.InvoiceMetadata, items []model.AnnotatedItem, selections []model.Selection) (*model.Invoice, []ItemError, error) {
	if meta == nil {
		meta = &model.InvoiceMetadata{}
	}

	var itemErrs []ItemError
	seen := make(map[int]bool, len(selections))
	picks := make([]pick, 0, len(selections))
	for _, sel := range selections {
		if sel.Index < 0 || sel.Index >= len(items) {
			itemErrs = append(itemErrs, ItemError{Index: sel.Index, Err: ErrSelectionOutOfRange})
			continue
		}
		if seen[sel.Index] {
			itemErrs = append(itemErrs, ItemError{
				Index: sel.Index, ProductName: items[sel.Index].Item.ProductName, Err: ErrDuplicateSelection,
			})
			continue
		}
		seen[sel.Index] = true
		picks = append(picks, pick{sel: sel, item: items[sel.Index]})
	}
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].sel.Index < picks[j].sel.Index })

	now := a.now().UTC()
	inv := &model.Invoice{
		ID:              uuid.New(),
		Number:          meta.InvoiceNumber,
		Date:            meta.InvoiceDate,
		Supplier:        meta.Supplier,
		Notes:           meta.Notes,
		Lines:           make([]model.InvoiceLine, 0, len(picks)),
		AdditionalCosts: money.OrZero(meta.AdditionalCosts),
		PriceReduction:  money.OrZero(meta.PriceReduction),
		CreatedAt:       now,
	}
	for i := range picks {
		p := &picks[i]
		it := p.item.Item
		productID := p.item.Match.ProductID
		if p.sel.ProductID != nil {
			productID = p.sel.ProductID
		}
		bestBefore := it.BestBefore
		if p.sel.BestBefore != nil {
			bestBefore = p.sel.BestBefore
		}
		p.line = len(inv.Lines)
		inv.Lines = append(inv.Lines, model.InvoiceLine{
			ID:            uuid.New(),
			ProductID:     productID,
			ProductName:   it.ProductName,
			ArticleNumber: it.ArticleNumber,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			TotalPrice:    it.TotalPrice,
			BestBefore:    bestBefore,
			MatchType:     p.item.Match.Type,
			Confidence:    p.item.Match.Confidence,
		})
	}
	inv.CalculateTotals()

	if err := a.sink.SaveInvoice(ctx, inv); err != nil {
		return nil, itemErrs, fmt.Errorf("save invoice: %w", err)
	}
	a.log.Info().
		Str("invoice_id", inv.ID.String()).
		Int("lines", len(inv.Lines)).
		Str("total", inv.Total.StringFixed(2)).
		Msg("invoice saved")

	var (
		stocked  []uuid.UUID
		fatalErr error
	)
	for _, p := range picks {
		if !p.sel.ToStock {
			continue
		}
		line := &inv.Lines[p.line]
		fail := func(err error) {
			a.log.Warn().
				Err(err).
				Int("index", p.sel.Index).
				Str("product_name", line.ProductName).
				Msg("stock admission failed")
			itemErrs = append(itemErrs, ItemError{Index: p.sel.Index, ProductName: line.ProductName, Err: err})
		}

		if fatalErr != nil {
			fail(fatalErr)
			continue
		}
		switch {
		case a.stock == nil:
			fail(fmt.Errorf("%w: no ledger configured", model.ErrLedgerUnavailable))
			continue
		case line.ProductID == nil:
			fail(ErrNoProduct)
			continue
		case line.BestBefore == nil:
			fail(ErrNoBestBefore)
			continue
		}

		_, err := a.stock.Receive(ctx, *line.ProductID, *line.BestBefore, line.Quantity, now, &line.ID)
		if err != nil {
			fail(err)
			if errors.Is(err, model.ErrLedgerUnavailable) || ctx.Err() != nil {
				fatalErr = err
			}
			continue
		}
		line.Stocked = true
		stocked = append(stocked, line.ID)
	}

	if m, ok := a.sink.(StockMarker); ok && len(stocked) > 0 {
		if err := m.MarkStocked(ctx, inv.ID, stocked); err != nil {
			a.log.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("mark stocked lines")
			if fatalErr == nil {
				fatalErr = fmt.Errorf("mark stocked lines: %w", err)
			}
		}
	}
	if fatalErr != nil {
		return inv, itemErrs, fatalErr
	}
	return inv, itemErrs, nil
}

// MemorySink keeps invoices in memory
type MemorySink struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*model.Invoice
	order    []uuid.UUID
}

func NewMemorySink() *MemorySink {
	return &MemorySink{invoices: make(map[uuid.UUID]*model.Invoice)}
}

func (s *MemorySink) SaveInvoice(ctx context.Context, inv *model.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	cp.Lines = append([]model.InvoiceLine(nil), inv.Lines...)
	if _, ok := s.invoices[inv.ID]; !ok {
		s.order = append(s.order, inv.ID)
	}
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *MemorySink) MarkStocked(ctx context.Context, invoiceID uuid.UUID, lineIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("invoice %s not saved", invoiceID)
	}
	want := make(map[uuid.UUID]bool, len(lineIDs))
	for _, id := range lineIDs {
		want[id] = true
	}
	for i := range inv.Lines {
		if want[inv.Lines[i].ID] {
			inv.Lines[i].Stocked = true
		}
	}
	return nil
}

// Invoices returns copies of the saved invoices in save order
func (s *MemorySink) Invoices() []model.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Invoice, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.invoices[id]
		cp.Lines = append([]model.InvoiceLine(nil), cp.Lines...)
		out = append(out, cp)
	}
	return out
}
