// Package catalog provides product catalog snapshots for the matcher.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rezonia/stock-intake/internal/model"
)

// Source yields the current catalog. Callers take a fresh snapshot per
// invoice; the matcher never sees a catalog change mid-run.
type Source interface {
	Snapshot(ctx context.Context) ([]model.CatalogEntry, error)
}

// Static serves a fixed catalog
type Static []model.CatalogEntry

func (s Static) Snapshot(ctx context.Context) ([]model.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.CatalogEntry, len(s))
	copy(out, s)
	return out, nil
}

// FileSource reads a JSON array of catalog entries on every snapshot
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Snapshot(ctx context.Context) ([]model.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Decode(data)
}

// Decode parses and checks a JSON catalog. IDs must be positive and unique,
// names non-empty.
func Decode(data []byte) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[int64]bool, len(entries))
	var errs []error
	for i, e := range entries {
		switch {
		case e.ID <= 0:
			errs = append(errs, model.NewValidationError(fmt.Sprintf("[%d].id", i), e.ID, "gt=0", "product id must be positive"))
		case seen[e.ID]:
			errs = append(errs, model.NewValidationError(fmt.Sprintf("[%d].id", i), e.ID, "unique", "duplicate product id"))
		}
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, model.NewValidationError(fmt.Sprintf("[%d].name", i), e.Name, "required", "product name is empty"))
		}
		seen[e.ID] = true
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return entries, nil
}
