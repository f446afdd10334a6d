package matcher

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/rezonia/stock-intake/internal/model"
)

const (
	// DefaultThreshold is the lowest similarity accepted as a fuzzy match
	DefaultThreshold = 0.75
	defaultWorkers   = 4
)

// Matcher resolves parsed items against a catalog snapshot. It holds no
// state between calls and is safe for concurrent use.
type Matcher struct {
	threshold float64
	workers   int
}

// Option configures a Matcher
type Option func(*Matcher)

// WithThreshold sets the fuzzy acceptance threshold (inclusive)
func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t > 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// WithWorkers bounds the MatchAll worker pool
func WithWorkers(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.workers = n
		}
	}
}

// New creates a matcher
func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold: DefaultThreshold,
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the fuzzy acceptance threshold
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

type indexed struct {
	entry model.CatalogEntry
	name  string
	runes int
}

// index is a normalized, read-only view of a catalog snapshot
type index []indexed

func newIndex(catalog []model.CatalogEntry) index {
	idx := make(index, len(catalog))
	for i, e := range catalog {
		name := Normalize(e.Name)
		idx[i] = indexed{entry: e, name: name, runes: utf8.RuneCountInString(name)}
	}
	return idx
}

// Match picks the best catalog entry for item: barcode, then exact name,
// then fuzzy name at or above the threshold. The outcome does not depend
// on catalog order.
func (m *Matcher) Match(item model.ParsedItem, catalog []model.CatalogEntry) model.MatchResult {
	return m.match(item, newIndex(catalog))
}

func (m *Matcher) match(item model.ParsedItem, idx index) model.MatchResult {
	if code := strings.TrimSpace(item.ArticleNumber); code != "" {
		var best *indexed
		for i := range idx {
			if hasBarcode(idx[i].entry, code) && (best == nil || idx[i].entry.ID < best.entry.ID) {
				best = &idx[i]
			}
		}
		if best != nil {
			return model.Matched(best.entry, model.MatchBarcode, 1)
		}
	}

	name := Normalize(item.ProductName)
	if name == "" {
		return model.NoMatch()
	}

	var exact *indexed
	for i := range idx {
		if idx[i].name == name && (exact == nil || idx[i].entry.ID < exact.entry.ID) {
			exact = &idx[i]
		}
	}
	if exact != nil {
		return model.Matched(exact.entry, model.MatchExact, 1)
	}

	var (
		best    *indexed
		bestSim float64
	)
	for i := range idx {
		c := &idx[i]
		if c.name == "" {
			continue
		}
		sim := Similarity(name, c.name)
		if best == nil || better(sim, c, bestSim, best) {
			best, bestSim = c, sim
		}
	}
	if best == nil || bestSim < m.threshold {
		return model.NoMatch()
	}
	return model.Matched(best.entry, model.MatchFuzzy, bestSim)
}

// better orders fuzzy candidates: higher similarity, shorter name, lower ID
func better(sim float64, c *indexed, bestSim float64, best *indexed) bool {
	if sim != bestSim {
		return sim > bestSim
	}
	if c.runes != best.runes {
		return c.runes < best.runes
	}
	return c.entry.ID < best.entry.ID
}

func hasBarcode(e model.CatalogEntry, code string) bool {
	for _, b := range e.Barcodes {
		if strings.TrimSpace(b) == code {
			return true
		}
	}
	return false
}

// MatchAll matches every item on a bounded worker pool. Results keep the
// order of items.
func (m *Matcher) MatchAll(ctx context.Context, items []model.ParsedItem, catalog []model.CatalogEntry) ([]model.AnnotatedItem, error) {
	idx := newIndex(catalog)
	out := make([]model.AnnotatedItem, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = model.AnnotatedItem{Item: items[i], Match: m.match(items[i], idx)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
