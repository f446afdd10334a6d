package intakelib

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/rezonia/stock-intake/internal/catalog"
	"github.com/rezonia/stock-intake/internal/ledger"
	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/matcher"
	"github.com/rezonia/stock-intake/internal/parser/text"
	"github.com/rezonia/stock-intake/internal/processor"
)

// Options configures the processor
type Options struct {
	MatchThreshold  float64 // Minimum fuzzy similarity (default: 0.75)
	ReviewThreshold float64 // Below this, flag for review (default: 0.90)
	Workers         int     // Parallel items and invoices (default: 4)

	// Catalog is the product list items are matched against
	Catalog []CatalogEntry
}

// DefaultOptions returns default processor options
func DefaultOptions() Options {
	return Options{
		MatchThreshold:  matcher.DefaultThreshold,
		ReviewThreshold: processor.DefaultReviewThreshold,
		Workers:         4,
	}
}

// Result is the outcome of processing one invoice. Success is false when
// no item was recognized; metadata and warnings are still filled in.
type Result struct {
	Success      bool
	ErrorMessage string
	Format       Format
	Metadata     *InvoiceMetadata
	Items        []AnnotatedItem
	Warnings     []string
	NeedsReview  bool
}

// Input is one invoice for ProcessBatch
type Input struct {
	Name   string
	Reader io.Reader
	Format Format
}

// Processor parses and matches invoices and keeps an in-memory stock ledger
type Processor struct {
	pipeline *processor.Pipeline
	matcher  *matcher.Matcher
	catalog  catalog.Static
	ledger   *ledger.Ledger
	sink     *processor.MemorySink
	options  Options
}

// NewProcessor creates a new processor with the given options
func NewProcessor(opts Options) *Processor {
	m := matcher.New(
		matcher.WithThreshold(opts.MatchThreshold),
		matcher.WithWorkers(opts.Workers),
	)
	cat := catalog.Static(opts.Catalog)
	return &Processor{
		pipeline: processor.NewPipeline(
			processor.WithMatcher(m),
			processor.WithCatalog(cat),
			processor.WithReviewThreshold(opts.ReviewThreshold),
			processor.WithWorkers(opts.Workers),
			processor.WithRegistry(text.NewRegistry(text.WithLogger(logger.Nop()))),
			processor.WithLogger(logger.Nop()),
		),
		matcher: m,
		catalog: cat,
		ledger:  ledger.New(ledger.NewMemoryStore(), ledger.WithLogger(logger.Nop())),
		sink:    processor.NewMemorySink(),
		options: opts,
	}
}

// NewDefaultProcessor creates a processor with default options and an empty catalog
func NewDefaultProcessor() *Processor {
	return NewProcessor(DefaultOptions())
}

// Process parses invoice text of the given layout and matches its items
func (p *Processor) Process(ctx context.Context, r io.Reader, format Format) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	res := p.pipeline.Process(ctx, string(data), format)
	if res.Error != nil {
		return nil, res.Error
	}
	return toResult(res), nil
}

func toResult(res *processor.Result) *Result {
	return &Result{
		Success:      res.Parse.Success,
		ErrorMessage: res.Parse.ErrorMessage,
		Format:       res.Parse.Format,
		Metadata:     res.Parse.Metadata,
		Items:        res.Items,
		Warnings:     res.Warnings,
		NeedsReview:  res.NeedsReview,
	}
}

// ProcessBatch processes multiple inputs concurrently. Results keep the
// order of inputs; a failed input leaves a nil result and the first error
// is returned.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []Input) ([]*Result, error) {
	batch := make([]processor.Input, len(inputs))
	for i, in := range inputs {
		data, err := io.ReadAll(in.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", in.Name, err)
		}
		batch[i] = processor.Input{Name: in.Name, Text: string(data), Format: in.Format}
	}

	var firstErr error
	results := make([]*Result, len(inputs))
	for i, res := range p.pipeline.ProcessBatch(ctx, batch) {
		if res.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", res.Name, res.Error)
			}
			continue
		}
		results[i] = toResult(res)
	}
	return results, firstErr
}

// Match matches one product name against the configured catalog
func (p *Processor) Match(name, articleNumber string) MatchResult {
	return p.matcher.Match(ParsedItem{ProductName: name, ArticleNumber: articleNumber, Quantity: 1}, p.catalog)
}

// Commit assembles the selected items into an invoice and books ToStock
// selections into the in-memory ledger. Per-item failures are returned as
// errors alongside the invoice.
func (p *Processor) Commit(ctx context.Context, result *Result, selections []Selection) (*Invoice, []error, error) {
	inv, itemErrs, err := processor.NewAssembler(p.sink, p.ledger, processor.WithAssemblerLogger(logger.Nop())).
		Assemble(ctx, result.Metadata, result.Items, selections)
	errs := make([]error, 0, len(itemErrs))
	for i := range itemErrs {
		errs = append(errs, &itemErrs[i])
	}
	return inv, errs, err
}

// Stock returns the current stock of a product per batch
func (p *Processor) Stock(ctx context.Context, productID int64) (ProductStock, error) {
	return p.ledger.ProductStock(ctx, productID)
}

// Move appends a shelving event to a batch of the in-memory ledger
func (p *Processor) Move(ctx context.Context, batchID uuid.UUID, typ EventType, qty int) (*ShelvingEvent, error) {
	ev := &ShelvingEvent{BatchID: batchID, Type: typ, Quantity: qty, OccurredAt: time.Now().UTC()}
	if err := p.ledger.TryAppend(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
