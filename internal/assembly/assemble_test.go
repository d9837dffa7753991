package assembly

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/search"
)

func mk(id, category string, price float64) catalog.Item {
	return catalog.Item{ID: id, Title: id, Category: category, Price: price, Currency: "USD", Shop: "s1"}
}

// fullSet returns n items for each required category priced 10, 20, ...
func fullSet(n int) []catalog.Item {
	var out []catalog.Item
	for _, cat := range catalog.RequiredCategories {
		for i := 0; i < n; i++ {
			out = append(out, mk(fmt.Sprintf("%s-%d", cat, i), cat, float64(10*(i+1))))
		}
	}
	return out
}

func usd(max float64) *search.Budget { return &search.Budget{Currency: "USD", Max: max} }

func TestAssemble_NoItems(t *testing.T) {
	res := Assemble(nil, Constraints{})
	if res.InfeasibleReason != ReasonNoItems || len(res.Bundles) != 0 {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestAssemble_MissingRequiredCategory(t *testing.T) {
	var items []catalog.Item
	for _, it := range fullSet(2) {
		if it.Category != catalog.CategoryBoots {
			items = append(items, it)
		}
	}
	res := Assemble(items, Constraints{Budget: usd(700)})
	if res.InfeasibleReason != "Missing required category: boots" {
		t.Fatalf("unexpected reason %q", res.InfeasibleReason)
	}
	if len(res.Bundles) != 0 {
		t.Fatalf("expected zero bundles, got %d", len(res.Bundles))
	}
}

func TestAssemble_MustHaveEmptiesCategory(t *testing.T) {
	items := fullSet(2)
	for i := range items {
		if items[i].Category != catalog.CategoryBoots {
			items[i].Attributes.Waterproof = true
		}
	}
	res := Assemble(items, Constraints{Budget: usd(700), MustHaves: []string{"waterproof"}})
	if res.InfeasibleReason != "No items match must-haves for category: boots" {
		t.Fatalf("unexpected reason %q", res.InfeasibleReason)
	}
}

func TestAssemble_MustHaveMatchesFeatureTag(t *testing.T) {
	items := fullSet(2)
	for i := range items {
		items[i].Attributes.FeatureTags = []string{"breathable"}
	}
	res := Assemble(items, Constraints{MustHaves: []string{"breathable"}})
	if res.InfeasibleReason != "" || len(res.Bundles) == 0 {
		t.Fatalf("expected bundles, got %+v", res)
	}
	if res.Bundles[0].Notes[0] != "Must-have met by every item: breathable" {
		t.Fatalf("unexpected notes %v", res.Bundles[0].Notes)
	}
}

func TestAssemble_CurrencyMismatch(t *testing.T) {
	items := fullSet(1)
	items[2].Currency = "EUR"
	res := Assemble(items, Constraints{Budget: usd(700)})
	if res.InfeasibleReason != "Currency mismatch: EUR, USD" {
		t.Fatalf("unexpected reason %q", res.InfeasibleReason)
	}

	// without a budget, currencies are not compared
	if res := Assemble(items, Constraints{}); res.InfeasibleReason != "" {
		t.Fatalf("unexpected reason without budget %q", res.InfeasibleReason)
	}
}

func TestAssemble_SortedByPriceAndCapped(t *testing.T) {
	res := Assemble(fullSet(3), Constraints{Budget: usd(1000)})
	if len(res.Bundles) != MaxBundles {
		t.Fatalf("expected %d bundles, got %d", MaxBundles, len(res.Bundles))
	}
	if res.Generated != 243 || res.Truncated {
		t.Fatalf("expected 3^5 combinations, got %d truncated=%v", res.Generated, res.Truncated)
	}
	if res.Bundles[0].TotalPrice.Amount != 50 {
		t.Fatalf("cheapest outfit must be first, got %v", res.Bundles[0].TotalPrice)
	}
	for i := 1; i < len(res.Bundles); i++ {
		a, b := res.Bundles[i-1], res.Bundles[i]
		if a.TotalPrice.Amount > b.TotalPrice.Amount ||
			(a.TotalPrice.Amount == b.TotalPrice.Amount && a.ID > b.ID) {
			t.Fatalf("bundles out of order at %d: %v then %v", i, a, b)
		}
	}
}

func TestAssemble_BundleInvariants(t *testing.T) {
	items := fullSet(3)
	items = append(items, mk("bb-0", catalog.CategoryBaseBottom, 5))
	byID := map[string]catalog.Item{}
	for _, it := range items {
		byID[it.ID] = it
	}

	res := Assemble(items, Constraints{Budget: usd(1000)})
	want := append(append([]string{}, catalog.RequiredCategories...), catalog.CategoryBaseBottom)
	sort.Strings(want)
	for _, b := range res.Bundles {
		if b.ID != BundleID(b.ItemIDs()) {
			t.Fatalf("id %q does not match items %v", b.ID, b.ItemIDs())
		}
		ids := b.ItemIDs()
		sort.Strings(ids)
		if b.ID != strings.Join(ids, "|") {
			t.Fatalf("id must be sorted ids joined by |, got %q", b.ID)
		}
		var cats []string
		var sum float64
		for _, id := range b.ItemIDs() {
			cats = append(cats, byID[id].Category)
			sum += byID[id].Price
		}
		sort.Strings(cats)
		if !reflect.DeepEqual(cats, want) {
			t.Fatalf("bundle %s covers %v, want %v", b.ID, cats, want)
		}
		if b.TotalPrice.Amount != sum || b.TotalPrice.Amount > 1000 {
			t.Fatalf("bad total %v for sum %v", b.TotalPrice.Amount, sum)
		}
	}

	again := Assemble(items, Constraints{Budget: usd(1000)})
	if !reflect.DeepEqual(res, again) {
		t.Fatal("assembly must be deterministic")
	}
}

func TestBundleID_OrderIndependent(t *testing.T) {
	a := BundleID([]string{"b", "a", "c"})
	b := BundleID([]string{"c", "b", "a"})
	if a != b || a != "a|b|c" {
		t.Fatalf("got %q and %q", a, b)
	}
	in := []string{"z", "y"}
	BundleID(in)
	if in[0] != "z" {
		t.Fatal("BundleID must not reorder its input")
	}
}

func TestAssemble_StrictBudget(t *testing.T) {
	res := Assemble(fullSet(2), Constraints{Budget: usd(49)})
	if res.InfeasibleReason != ReasonOverBudget || len(res.Bundles) != 0 {
		t.Fatalf("expected over budget, got %+v", res)
	}

	res = Assemble(fullSet(2), Constraints{Budget: usd(60)})
	if len(res.Bundles) != 5 {
		t.Fatalf("expected 5 bundles at or under 60, got %d", len(res.Bundles))
	}
	for _, b := range res.Bundles {
		if b.TotalPrice.Amount > 60 {
			t.Fatalf("bundle over budget: %v", b.TotalPrice)
		}
	}
}

func TestAssemble_CombinationCap(t *testing.T) {
	items := fullSet(TopK + 2)
	for i := 0; i < TopK; i++ {
		items = append(items, mk(fmt.Sprintf("bb-%d", i), catalog.CategoryBaseBottom, 1))
	}
	res := Assemble(items, Constraints{})
	if res.Generated != MaxCombinations || !res.Truncated {
		t.Fatalf("expected cap at %d, got %d truncated=%v", MaxCombinations, res.Generated, res.Truncated)
	}
	for _, b := range res.Bundles {
		for _, id := range b.ItemIDs() {
			if strings.HasSuffix(id, "-5") || strings.HasSuffix(id, "-6") {
				t.Fatalf("item %s is outside the top-%d cut", id, TopK)
			}
		}
	}
}

func TestAssemble_TopKPrefersNiceToHaves(t *testing.T) {
	items := fullSet(TopK + 1)
	// the most expensive jacket becomes the only one with the nice-to-have
	for i := range items {
		if items[i].ID == fmt.Sprintf("jacket-%d", TopK) {
			items[i].Attributes.Extra = map[string]catalog.Value{"hood": catalog.Bool(true)}
		}
	}
	pool := topK(items[:TopK+1], []string{"hood"})
	if pool[0].ID != fmt.Sprintf("jacket-%d", TopK) {
		t.Fatalf("expected nice-to-have jacket first, got %s", pool[0].ID)
	}
	if len(pool) != TopK {
		t.Fatalf("expected %d, got %d", TopK, len(pool))
	}
}

func TestAssemble_Notes(t *testing.T) {
	items := fullSet(1)
	items[0].Attributes.FeatureTags = []string{"helmet-compatible"}
	res := Assemble(items, Constraints{Budget: usd(100), NiceToHaves: []string{"helmet-compatible", "heated"}})
	want := []string{
		"Includes nice-to-have: helmet-compatible",
		"Under budget by USD 50",
		"All items from one shop: s1",
	}
	if !reflect.DeepEqual(res.Bundles[0].Notes, want) {
		t.Fatalf("expected notes %v, got %v", want, res.Bundles[0].Notes)
	}
}

func TestAssemble_CapStillFindsFittingOutfit(t *testing.T) {
	var items []catalog.Item
	for _, cat := range catalog.CategoryOrder {
		for i := 0; i < TopK; i++ {
			it := mk(fmt.Sprintf("%s-%d", cat, i), cat, 10)
			if cat == catalog.CategoryJacket && i < TopK-1 {
				// nice-to-have pulls the expensive jackets to the front of the pool
				it.Price = 500
				it.Attributes.Waterproof = true
			}
			items = append(items, it)
		}
	}

	res := Assemble(items, Constraints{Budget: usd(100), NiceToHaves: []string{"waterproof"}})
	if res.InfeasibleReason != "" || len(res.Bundles) != MaxBundles {
		t.Fatalf("expected %d bundles, got reason=%q bundles=%d generated=%d", MaxBundles, res.InfeasibleReason, len(res.Bundles), res.Generated)
	}
	for _, b := range res.Bundles {
		if b.TotalPrice.Amount != 60 {
			t.Fatalf("expected every outfit at 60, got %v", b.TotalPrice)
		}
		if !strings.Contains(b.ID, fmt.Sprintf("jacket-%d", TopK-1)) {
			t.Fatalf("expected the cheap jacket in %s", b.ID)
		}
	}
}

func TestAssemble_OverBudgetBranchesAreNotCounted(t *testing.T) {
	res := Assemble(fullSet(3), Constraints{Budget: usd(60)})
	// only outfits costing 50 or 60 fit: the all-cheapest one plus one 20-dollar swap per category
	if res.Generated != 6 || res.Truncated || len(res.Bundles) != MaxBundles {
		t.Fatalf("unexpected walk generated=%d truncated=%v bundles=%d", res.Generated, res.Truncated, len(res.Bundles))
	}
}
