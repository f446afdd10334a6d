package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds surfaced by parsing, matching and the stock ledger
var (
	ErrUnknownFormat     = errors.New("unknown invoice format")
	ErrUnparseableLine   = errors.New("unparseable line")
	ErrNoItemsRecognized = errors.New("no items recognized")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMalformedEvent    = errors.New("malformed shelving event")
	ErrLedgerUnavailable = errors.New("ledger store unavailable")
	ErrBatchNotFound     = errors.New("batch not found")
)

// ParseError represents parsing errors with format and line context
type ParseError struct {
	Format  Format
	Line    int
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	where := string(e.Format)
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Format, e.Line)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", where, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", where, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(format Format, line int, field, message string, cause error) *ParseError {
	return &ParseError{
		Format:  format,
		Line:    line,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

// StockError reports a rejected ledger append together with the stock the
// batch would have been left with.
type StockError struct {
	BatchID  uuid.UUID
	Type     EventType
	Quantity int
	Storage  int
	Shelf    int
	Cause    error
}

func (e *StockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("batch %s: %s %d rejected (storage=%d, shelf=%d): %v",
			e.BatchID, e.Type, e.Quantity, e.Storage, e.Shelf, e.Cause)
	}
	return fmt.Sprintf("batch %s: %s %d rejected (storage=%d, shelf=%d)",
		e.BatchID, e.Type, e.Quantity, e.Storage, e.Shelf)
}

func (e *StockError) Unwrap() error {
	return e.Cause
}

// NewStockError creates a new stock error
func NewStockError(ev ShelvingEvent, stock Stock, cause error) *StockError {
	return &StockError{
		BatchID:  ev.BatchID,
		Type:     ev.Type,
		Quantity: ev.Quantity,
		Storage:  stock.Storage,
		Shelf:    stock.Shelf,
		Cause:    cause,
	}
}
