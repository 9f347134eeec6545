package scanning

import (
	"context"
	"fmt"
	"strings"
)

// RawImage is an uploaded receipt photo as received from the caller
type RawImage struct {
	Data        []byte
	ContentType string
}

// NormalizedImage is a recognition-ready PNG: single-channel grey,
// contrast-adjusted, fixed width
type NormalizedImage struct {
	Data   []byte
	Width  int
	Height int
}

// Category is a spending category label
type Category string

const (
	FoodAndDining     Category = "Food & Dining"
	Transportation    Category = "Transportation"
	Shopping          Category = "Shopping"
	Entertainment     Category = "Entertainment"
	BillsAndUtilities Category = "Bills & Utilities"
	Healthcare        Category = "Healthcare"
	Travel            Category = "Travel"
	Groceries         Category = "Groceries"
	Other             Category = "Other"
)

var allCategories = []Category{
	FoodAndDining,
	Transportation,
	Shopping,
	Entertainment,
	BillsAndUtilities,
	Healthcare,
	Travel,
	Groceries,
	Other,
}

// Categories returns every category in declaration order
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory matches a label against the closed category set, ignoring
// case and surrounding whitespace
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range allCategories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// UnknownMerchant is used when no merchant name leads the receipt text
const UnknownMerchant = "Unknown Merchant"

// ReceiptData contains extracted information from a receipt
type ReceiptData struct {
	Total    string   `json:"total,omitempty"` // decimal string as printed, e.g. "8.50"
	Date     string   `json:"date"`            // ISO 8601 format
	Merchant string   `json:"merchant,omitempty"`
	Category Category `json:"category"`
}

// SetCategory replaces the suggested category with a caller's choice
func (d *ReceiptData) SetCategory(label string) error {
	c, ok := ParseCategory(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, label)
	}
	d.Category = c
	return nil
}

// Engine is a text-recognition engine instance. An Engine serves a single
// receipt and is closed right after.
type Engine interface {
	// Recognize returns the text found in a PNG image
	Recognize(ctx context.Context, png []byte) (string, error)
	// Close releases the engine
	Close() error
}

// EngineProvider creates recognition engines
type EngineProvider interface {
	NewEngine(ctx context.Context) (Engine, error)
}

// EngineProviderFunc adapts a function to EngineProvider
type EngineProviderFunc func(ctx context.Context) (Engine, error)

// NewEngine calls f(ctx)
func (f EngineProviderFunc) NewEngine(ctx context.Context) (Engine, error) {
	return f(ctx)
}
