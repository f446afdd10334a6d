// Package processor chains parsing and product matching for supplier
// invoices and assembles reviewed items into saved invoices.
package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rezonia/stock-intake/internal/catalog"
	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/matcher"
	"github.com/rezonia/stock-intake/internal/model"
	"github.com/rezonia/stock-intake/internal/parser/text"
)

// DefaultReviewThreshold is the match confidence below which a result is
// flagged for manual review
const DefaultReviewThreshold = 0.9

const defaultWorkers = 4

// Pipeline parses invoice text and annotates the items with catalog matches
type Pipeline struct {
	registry        *text.Registry
	matcher         *matcher.Matcher
	catalog         catalog.Source
	reviewThreshold float64
	workers         int
	log             zerolog.Logger
}

// Option configures the pipeline
type Option func(*Pipeline)

// WithRegistry sets the parser registry
func WithRegistry(r *text.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithMatcher sets the product matcher
func WithMatcher(m *matcher.Matcher) Option {
	return func(p *Pipeline) { p.matcher = m }
}

// WithCatalog sets the catalog source. Without one every item is unmatched.
func WithCatalog(src catalog.Source) Option {
	return func(p *Pipeline) { p.catalog = src }
}

// WithReviewThreshold sets the confidence below which results need review
func WithReviewThreshold(t float64) Option {
	return func(p *Pipeline) {
		if t > 0 && t <= 1 {
			p.reviewThreshold = t
		}
	}
}

// WithWorkers bounds how many invoices ProcessBatch handles at once
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a new processing pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		reviewThreshold: DefaultReviewThreshold,
		workers:         defaultWorkers,
		log:             logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = text.NewRegistry()
	}
	if p.matcher == nil {
		p.matcher = matcher.New()
	}
	return p
}

// Registry returns the parser registry in use
func (p *Pipeline) Registry() *text.Registry {
	return p.registry
}

// Input is one invoice text for ProcessBatch
type Input struct {
	Name   string
	Text   string
	Format model.Format
}

// Result is the outcome of processing one invoice
type Result struct {
	Name        string                `json:"name,omitempty"`
	Parse       *model.ParseResult    `json:"parse,omitempty"`
	Items       []model.AnnotatedItem `json:"items"`
	NeedsReview bool                  `json:"needs_review"`
	Warnings    []string              `json:"warnings,omitempty"`
	Error       error                 `json:"-"`
}

// Process parses text as format and matches the items against a fresh
// catalog snapshot. Selector, catalog and context failures are reported in
// Result.Error. Text without items is not a failure: Result.Parse carries
// Success=false and whatever metadata was found.
func (p *Pipeline) Process(ctx context.Context, raw string, format model.Format) *Result {
	res, err := p.registry.Parse(ctx, raw, format)
	if err != nil {
		return &Result{Error: err}
	}

	result := &Result{Parse: res, Items: []model.AnnotatedItem{}, Warnings: res.Warnings()}
	if !res.Success {
		// metadata and warnings still go back to the caller
		p.log.Debug().
			Str("format", string(format)).
			Int("warnings", len(result.Warnings)).
			Msg(res.ErrorMessage)
		return result
	}

	var entries []model.CatalogEntry
	if p.catalog != nil {
		entries, err = p.catalog.Snapshot(ctx)
		if err != nil {
			result.Error = fmt.Errorf("catalog snapshot: %w", err)
			return result
		}
	}

	annotated, err := p.matcher.MatchAll(ctx, res.Items, entries)
	if err != nil {
		result.Error = err
		return result
	}
	result.Items = annotated
	result.NeedsReview = p.needsReview(annotated)

	p.log.Debug().
		Str("format", string(format)).
		Int("items", len(annotated)).
		Int("warnings", len(result.Warnings)).
		Bool("needs_review", result.NeedsReview).
		Msg("invoice processed")
	return result
}

func (p *Pipeline) needsReview(items []model.AnnotatedItem) bool {
	for _, a := range items {
		if a.Match.Type == model.MatchNone || a.Match.Confidence < p.reviewThreshold {
			return true
		}
	}
	return false
}

// ProcessBatch processes inputs concurrently on a bounded pool. Results keep
// the order of inputs; each carries its own error.
func (p *Pipeline) ProcessBatch(ctx context.Context, inputs []Input) []*Result {
	results := make([]*Result, len(inputs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{Name: in.Name, Error: err}
				return nil
			}
			r := p.Process(ctx, in.Text, in.Format)
			r.Name = in.Name
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}
