package text

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	money "github.com/rezonia/stock-intake/internal/decimal"
	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/model"
)

// Parser turns classified lines of one supplier layout into a ParseResult
type Parser interface {
	// Parse never fails as a whole; unreadable lines land in LineErrors
	Parse(lines []model.ClassifiedLine) *model.ParseResult

	// Format returns the layout key
	Format() model.Format

	// Locale returns the number convention the supplier prints
	Locale() money.Locale
}

// Registry maps format keys to parsers
type Registry struct {
	parsers map[model.Format]Parser
	log     zerolog.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger replaces the component logger
func WithLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry with every built-in layout
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		parsers: make(map[model.Format]Parser),
		log:     logger.WithComponent("parser"),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range []Parser{
		NewReceiptParser(),
		NewWholesaleParser(),
		NewWebshopParser(),
	} {
		r.RegisterParser(p)
	}
	return r
}

// RegisterParser adds a parser, replacing any parser with the same key
func (r *Registry) RegisterParser(p Parser) {
	r.parsers[p.Format()] = p
}

// Select returns the parser for format
func (r *Registry) Select(format model.Format) (Parser, error) {
	if p, ok := r.parsers[format]; ok {
		return p, nil
	}
	return nil, model.NewParseError(format, 0, "format",
		fmt.Sprintf("no parser for %q (known: %s)", format, r.known()), model.ErrUnknownFormat)
}

// Formats lists the registered keys in sorted order
func (r *Registry) Formats() []model.Format {
	out := make([]model.Format, 0, len(r.parsers))
	for f := range r.parsers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) known() string {
	names := make([]string, 0, len(r.parsers))
	for _, f := range r.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// Parse classifies text and runs the parser for format. Only an unknown
// format is an error; everything else is reported inside the result.
func (r *Registry) Parse(ctx context.Context, text string, format model.Format) (*model.ParseResult, error) {
	p, err := r.Select(format)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := Classify(text)
	if len(lines) == 0 {
		return &model.ParseResult{
			Format:       format,
			Metadata:     &model.InvoiceMetadata{},
			ErrorMessage: fmt.Sprintf("%s: empty invoice text", model.ErrNoItemsRecognized),
		}, nil
	}

	res := p.Parse(lines)
	for _, le := range res.LineErrors {
		r.log.Debug().
			Str("format", string(format)).
			Int("line", le.Line).
			Str("field", le.Field).
			Msg(le.Message)
	}
	r.log.Debug().
		Str("format", string(format)).
		Int("lines", len(lines)).
		Int("items", len(res.Items)).
		Int("skipped", len(res.LineErrors)).
		Msg("parsed invoice")
	return res, nil
}
