package assembly

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/search"
)

const (
	// TopK is how many candidates per category enter combination.
	TopK = 5
	// MaxCombinations caps how many combinations are generated.
	MaxCombinations = 2000
	// MaxBundles is how many bundles are returned.
	MaxBundles = 5
)

// Reasons reported instead of bundles.
const (
	ReasonNoItems      = "No items found"
	ReasonOverBudget   = "No feasible outfit under budget."
	reasonCurrency     = "Currency mismatch: "
	reasonMissing      = "Missing required category: "
	reasonMustHaveMiss = "No items match must-haves for category: "
)

// Constraints narrow which combinations are acceptable.
type Constraints struct {
	Budget      *search.Budget
	MustHaves   []string
	NiceToHaves []string
}

// ItemRef points at a catalog item.
type ItemRef struct {
	ItemID string `json:"itemId"`
}

// Money is an amount in a currency.
type Money struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// Bundle is one complete outfit.
type Bundle struct {
	ID         string    `json:"id"`
	Items      []ItemRef `json:"items"`
	TotalPrice Money     `json:"totalPrice"`
	Notes      []string  `json:"notes,omitempty"`
}

// ItemIDs returns the referenced ids in bundle order.
func (b Bundle) ItemIDs() []string {
	out := make([]string, len(b.Items))
	for i, r := range b.Items {
		out[i] = r.ItemID
	}
	return out
}

// Result is the assembly stage output. Exactly one of Bundles and
// InfeasibleReason is set.
type Result struct {
	Bundles          []Bundle `json:"outfitOptions"`
	InfeasibleReason string   `json:"infeasibleReason,omitempty"`

	// Generated counts the complete combinations priced. Branches already
	// over budget are cut before they are counted.
	Generated int  `json:"generated"`
	Truncated bool `json:"truncated"`
}

// BundleID is the content id of a set of items: their sorted ids joined by "|".
func BundleID(itemIDs []string) string {
	ids := make([]string, len(itemIDs))
	copy(ids, itemIDs)
	sort.Strings(ids)
	return strings.Join(ids, "|")
}

// Assemble combines candidates into at most MaxBundles outfits. Every outfit
// holds one item for each required category plus one for each optional
// category that still has candidates.
func Assemble(items []catalog.Item, c Constraints) Result {
	if len(items) == 0 {
		return infeasible(ReasonNoItems)
	}
	if reason, ok := currencyMismatch(items, c.Budget); ok {
		return infeasible(reason)
	}

	grouped := map[string][]catalog.Item{}
	for _, it := range items {
		grouped[it.Category] = append(grouped[it.Category], it)
	}
	for _, cat := range catalog.RequiredCategories {
		if len(grouped[cat]) == 0 {
			return infeasible(reasonMissing + cat)
		}
	}

	categories := append([]string{}, catalog.RequiredCategories...)
	for _, cat := range catalog.OptionalCategories {
		if len(grouped[cat]) > 0 {
			categories = append(categories, cat)
		}
	}

	pools := make([][]catalog.Item, 0, len(categories))
	for _, cat := range categories {
		pool := filterMustHaves(grouped[cat], c.MustHaves)
		if len(pool) == 0 {
			if isRequired(cat) {
				return infeasible(reasonMustHaveMiss + cat)
			}
			continue
		}
		pools = append(pools, topK(pool, c.NiceToHaves))
	}

	currency := bundleCurrency(items, c.Budget)
	feasible, generated, truncated := combine(pools, c.Budget)
	if len(feasible) == 0 {
		return Result{Bundles: []Bundle{}, InfeasibleReason: ReasonOverBudget, Generated: generated, Truncated: truncated}
	}

	sort.Slice(feasible, func(i, j int) bool {
		if feasible[i].total != feasible[j].total {
			return feasible[i].total < feasible[j].total
		}
		return feasible[i].id < feasible[j].id
	})
	if len(feasible) > MaxBundles {
		feasible = feasible[:MaxBundles]
	}

	res := Result{Bundles: make([]Bundle, 0, len(feasible)), Generated: generated, Truncated: truncated}
	for _, f := range feasible {
		refs := make([]ItemRef, len(f.items))
		for i, it := range f.items {
			refs[i] = ItemRef{ItemID: it.ID}
		}
		res.Bundles = append(res.Bundles, Bundle{
			ID:         f.id,
			Items:      refs,
			TotalPrice: Money{Currency: currency, Amount: f.total},
			Notes:      notes(f, c, currency),
		})
	}
	return res
}

func infeasible(reason string) Result {
	return Result{Bundles: []Bundle{}, InfeasibleReason: reason}
}

func isRequired(cat string) bool {
	for _, r := range catalog.RequiredCategories {
		if r == cat {
			return true
		}
	}
	return false
}

func currencyMismatch(items []catalog.Item, budget *search.Budget) (string, bool) {
	if budget == nil {
		return "", false
	}
	set := map[string]struct{}{strings.ToUpper(budget.Currency): {}}
	for _, it := range items {
		set[strings.ToUpper(it.Currency)] = struct{}{}
	}
	if len(set) == 1 {
		return "", false
	}
	list := make([]string, 0, len(set))
	for c := range set {
		list = append(list, c)
	}
	sort.Strings(list)
	return reasonCurrency + strings.Join(list, ", "), true
}

func bundleCurrency(items []catalog.Item, budget *search.Budget) string {
	if budget != nil {
		return budget.Currency
	}
	return items[0].Currency
}

// Satisfies reports whether an item carries tag as a true flag or a feature tag.
func Satisfies(it catalog.Item, tag string) bool {
	return it.Attributes.Flag(tag) || it.Attributes.HasTag(tag)
}

func filterMustHaves(items []catalog.Item, mustHaves []string) []catalog.Item {
	if len(mustHaves) == 0 {
		return items
	}
	var out []catalog.Item
	for _, it := range items {
		ok := true
		for _, tag := range mustHaves {
			if !Satisfies(it, tag) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, it)
		}
	}
	return out
}

func topK(items []catalog.Item, niceToHaves []string) []catalog.Item {
	minPrice := math.Inf(1)
	for _, it := range items {
		minPrice = math.Min(minPrice, it.Price)
	}
	score := func(it catalog.Item) float64 {
		var s float64
		for _, tag := range niceToHaves {
			if Satisfies(it, tag) {
				s += 10
			}
		}
		if it.Price <= 0 {
			return s + 10
		}
		return s + 10*minPrice/it.Price
	}
	ranked := make([]catalog.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(ranked[i]), score(ranked[j])
		if si != sj {
			return si > sj
		}
		if ranked[i].Price != ranked[j].Price {
			return ranked[i].Price < ranked[j].Price
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > TopK {
		ranked = ranked[:TopK]
	}
	return ranked
}

type combo struct {
	items []catalog.Item
	total float64
	id    string
}

// combine walks the Cartesian product of pools depth first, cheapest item
// of each pool first, stopping at MaxCombinations. A branch is cut as soon as
// its partial total plus the cheapest completion exceeds the budget, so the
// cap is only spent on combinations that fit.
func combine(pools [][]catalog.Item, budget *search.Budget) (feasible []combo, generated int, truncated bool) {
	n := len(pools)
	byPrice := make([][]catalog.Item, n)
	for i, p := range pools {
		byPrice[i] = append([]catalog.Item(nil), p...)
		sort.SliceStable(byPrice[i], func(a, b int) bool {
			if byPrice[i][a].Price != byPrice[i][b].Price {
				return byPrice[i][a].Price < byPrice[i][b].Price
			}
			return byPrice[i][a].ID < byPrice[i][b].ID
		})
	}
	// cheapest[i] is the lowest possible total of pools i..n-1.
	cheapest := make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		cheapest[i] = cheapest[i+1] + byPrice[i][0].Price
	}
	over := func(total float64) bool { return budget != nil && roundCents(total) > budget.Max }

	idx := make([]int, n)
	partial := make([]float64, n+1)
	level := 0
	for level >= 0 {
		pool := byPrice[level]
		// pools are price ordered: once one pick overshoots, the rest of the level does too
		if idx[level] == len(pool) || over(partial[level]+pool[idx[level]].Price+cheapest[level+1]) {
			idx[level] = 0
			level--
			if level >= 0 {
				idx[level]++
			}
			continue
		}
		partial[level+1] = partial[level] + pool[idx[level]].Price
		if level < n-1 {
			level++
			continue
		}

		if generated == MaxCombinations {
			return feasible, generated, true
		}
		generated++
		picked := make([]catalog.Item, n)
		ids := make([]string, n)
		for i := range byPrice {
			picked[i] = byPrice[i][idx[i]]
			ids[i] = picked[i].ID
		}
		feasible = append(feasible, combo{items: picked, total: roundCents(partial[n]), id: BundleID(ids)})
		idx[level]++
	}
	return feasible, generated, false
}

func notes(f combo, c Constraints, currency string) []string {
	var out []string
	for _, tag := range c.MustHaves {
		out = append(out, "Must-have met by every item: "+tag)
	}
	for _, tag := range c.NiceToHaves {
		for _, it := range f.items {
			if Satisfies(it, tag) {
				out = append(out, "Includes nice-to-have: "+tag)
				break
			}
		}
	}
	if c.Budget != nil && f.total < c.Budget.Max {
		out = append(out, fmt.Sprintf("Under budget by %s %s", currency, FormatAmount(c.Budget.Max-f.total)))
	}
	shop := f.items[0].Shop
	same := true
	for _, it := range f.items[1:] {
		if it.Shop != shop {
			same = false
			break
		}
	}
	if same {
		out = append(out, "All items from one shop: "+shop)
	}
	return out
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatAmount renders a money amount rounded to cents with no trailing zeros.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(roundCents(v), 'f', -1, 64)
}
