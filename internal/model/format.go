package model

import "strings"

// Format identifies a supplier invoice layout
type Format string

const (
	FormatReceipt   Format = "receipt"
	FormatWholesale Format = "wholesale"
	FormatWebshop   Format = "webshop"
	FormatUnknown   Format = "unknown"
)

// ParseFormat normalizes a user supplied format key. Unrecognized keys are
// returned as-is so the selector can report them.
func ParseFormat(s string) Format {
	return Format(strings.ToLower(strings.TrimSpace(s)))
}

// LineKind is the shape a classifier assigned to one physical line
type LineKind int

const (
	LineUnknown LineKind = iota
	LineItem
	LineTaxSummary
	LineDiscount
	LineSignature
	LineMetadata
)

func (k LineKind) String() string {
	switch k {
	case LineItem:
		return "item"
	case LineTaxSummary:
		return "tax_summary"
	case LineDiscount:
		return "discount"
	case LineSignature:
		return "signature"
	case LineMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// ClassifiedLine is one trimmed, non-blank physical line of invoice text.
// Number is the 1-based position in the raw text, blank lines included.
type ClassifiedLine struct {
	Number int      `json:"number"`
	Text   string   `json:"text"`
	Kind   LineKind `json:"kind"`
}

// MarshalText renders the kind by name in JSON output
func (k LineKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
