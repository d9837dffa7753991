package search

import "github.com/imrishuroy/go-outfit-pipeline/internal/catalog"

// Budget caps the price of every candidate.
type Budget struct {
	Currency string  `json:"currency" validate:"required,len=3"`
	Max      float64 `json:"max" validate:"gt=0"`
}

// Preferences are attribute constraints. Extra holds any other attribute the
// caller wants matched by equality.
type Preferences struct {
	Color string            `json:"color,omitempty"`
	Brand string            `json:"brand,omitempty"`
	Size  string            `json:"size,omitempty"`
	Shops []string          `json:"shops,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Request is the normalized shopping request fed into the pipeline.
type Request struct {
	Budget      *Budget     `json:"budget,omitempty" validate:"omitempty"`
	Deadline    string      `json:"deadline,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Preferences Preferences `json:"preferences"`
	MustHaves   []string    `json:"mustHaves,omitempty"`
	NiceToHaves []string    `json:"niceToHaves,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
}

// QueryMeta reports what the search actually asked the shops for.
type QueryMeta struct {
	RequestedShops    []string `json:"requestedShops"`
	AttemptedRequests int      `json:"attemptedRequests"`
}

// Result is the search stage output.
type Result struct {
	Items       []catalog.Item `json:"items"`
	MissingInfo []string       `json:"missingInfo,omitempty"`
	QueryMeta   QueryMeta      `json:"queryMeta"`
	Relaxed     bool           `json:"relaxed"`
	Relaxations []string       `json:"relaxations,omitempty"`
}

// Variant names one step of attribute relaxation.
type Variant string

const (
	VariantFull      Variant = "full"
	VariantDropColor Variant = "drop color"
	VariantDropBrand Variant = "drop brand"
	VariantDropBoth  Variant = "drop color and brand"
)

// Relaxation is the fixed order in which attribute constraints are loosened.
var Relaxation = []Variant{VariantFull, VariantDropColor, VariantDropBrand, VariantDropBoth}

func (v Variant) drops() []string {
	switch v {
	case VariantDropColor:
		return []string{"color"}
	case VariantDropBrand:
		return []string{"brand"}
	case VariantDropBoth:
		return []string{"color", "brand"}
	}
	return nil
}
