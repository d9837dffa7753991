package validation

import (
	"math"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
)

// New returns a configured validator with the struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(jsonName)

	v.RegisterStructValidation(pipelineStructValidation, PipelineRequest{})
	v.RegisterStructValidation(cartStructValidation, CreateCartRequest{})

	return v
}

// jsonName makes field errors report the name clients send.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// pipelineStructValidation checks the category subset, the currency code
// and the optional scoring weights.
func pipelineStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PipelineRequest)

	for _, c := range req.Request.Categories {
		if !knownCategory(c) {
			sl.ReportError(req.Request.Categories, "request.categories", "Request.Categories", "category", c)
		}
	}
	if b := req.Request.Budget; b != nil && b.Currency != strings.ToUpper(b.Currency) {
		sl.ReportError(b.Currency, "request.budget.currency", "Request.Budget.Currency", "uppercase", "")
	}
	if w := req.Weights; w != nil {
		if w.Price < 0 || w.Coherence < 0 || math.IsNaN(w.Price) || math.IsNaN(w.Coherence) {
			sl.ReportError(*w, "weights", "Weights", "non_negative", "")
		} else if w.Price+w.Coherence == 0 {
			sl.ReportError(*w, "weights", "Weights", "non_zero_sum", "")
		}
	}
}

// cartStructValidation rejects repeated item ids in a selection; quantities
// are changed through the items endpoint instead.
func cartStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateCartRequest)

	seen := map[string]bool{}
	for _, id := range req.Selection.ItemIDs {
		if seen[id] {
			sl.ReportError(req.Selection.ItemIDs, "selection.itemIds", "Selection.ItemIDs", "unique", id)
			return
		}
		seen[id] = true
	}
}

func knownCategory(c string) bool {
	for _, k := range catalog.CategoryOrder {
		if k == c {
			return true
		}
	}
	return false
}
