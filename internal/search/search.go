package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
)

const (
	// DefaultBaseDate anchors arrival projection so results do not depend on the wall clock.
	DefaultBaseDate = "2026-02-01"
	// PerCategoryCap bounds the candidates kept per category.
	PerCategoryCap = 10

	dateLayout = "2006-01-02"

	scoreColor      = 30
	scoreBrand      = 15
	scoreWaterproof = 20
	scorePriceMax   = 10
)

type options struct {
	baseDate time.Time
	cap      int
}

// Option tunes a Search call.
type Option func(*options)

// WithBaseDate overrides the date arrival projections start from.
func WithBaseDate(t time.Time) Option {
	return func(o *options) { o.baseDate = t }
}

// WithCap overrides PerCategoryCap.
func WithCap(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cap = n
		}
	}
}

// Missing lists the required request fields that are absent.
func Missing(req Request) []string {
	var missing []string
	if req.Budget == nil || req.Budget.Max <= 0 {
		missing = append(missing, "budget")
	}
	if strings.TrimSpace(req.Deadline) == "" {
		missing = append(missing, "deadline")
	}
	if strings.TrimSpace(req.Preferences.Color) == "" {
		missing = append(missing, "color")
	}
	if strings.TrimSpace(req.Preferences.Size) == "" {
		missing = append(missing, "size")
	}
	return missing
}

// Search filters every targeted shop, relaxing color and brand per shop and
// category when the strict match is empty, then returns at most the cap of
// best-scored candidates per category in catalog.CategoryOrder.
func Search(cat *catalog.Catalog, req Request, opts ...Option) Result {
	base, _ := time.Parse(dateLayout, DefaultBaseDate)
	o := options{baseDate: base, cap: PerCategoryCap}
	for _, fn := range opts {
		fn(&o)
	}

	res := Result{Items: []catalog.Item{}, QueryMeta: QueryMeta{RequestedShops: []string{}}}
	if missing := Missing(req); len(missing) > 0 {
		res.MissingInfo = missing
		return res
	}

	shops := targetShops(cat, req.Preferences.Shops)
	categories := orderedCategories(req.Categories)
	q := newQuery(req, o.baseDate)

	seen := map[string]struct{}{}
	perCategory := map[string][]scored{}
	for _, shop := range shops {
		res.QueryMeta.RequestedShops = append(res.QueryMeta.RequestedShops, shop)
		res.QueryMeta.AttemptedRequests++
		items := cat.Items(shop)
		for _, category := range categories {
			q.Category = category
			found, variant := relaxed(items, q)
			if variant != VariantFull && len(found) > 0 {
				res.Relaxed = true
				res.Relaxations = append(res.Relaxations, fmt.Sprintf("%s/%s: %s", shop, category, variant))
			}
			for _, it := range found {
				if _, dup := seen[it.ID]; dup {
					continue
				}
				seen[it.ID] = struct{}{}
				perCategory[category] = append(perCategory[category], scored{item: it, score: Score(it, req)})
			}
		}
	}

	for _, category := range categories {
		list := perCategory[category]
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.score != b.score {
				return a.score > b.score
			}
			if a.item.Price != b.item.Price {
				return a.item.Price < b.item.Price
			}
			return a.item.ID < b.item.ID
		})
		if len(list) > o.cap {
			list = list[:o.cap]
		}
		for _, s := range list {
			res.Items = append(res.Items, s.item)
		}
	}
	return res
}

type scored struct {
	item  catalog.Item
	score float64
}

// Score rates a candidate against the request preferences.
func Score(it catalog.Item, req Request) float64 {
	var s float64
	p := req.Preferences
	if p.Color != "" && strings.EqualFold(it.Attributes.Color, strings.TrimSpace(p.Color)) {
		s += scoreColor
	}
	if p.Brand != "" && strings.EqualFold(it.Attributes.Brand, strings.TrimSpace(p.Brand)) {
		s += scoreBrand
	}
	if wantsWaterproof(req) && it.Attributes.Waterproof {
		s += scoreWaterproof
	}
	if req.Budget != nil && req.Budget.Max > 0 {
		term := scorePriceMax * (1 - it.Price/req.Budget.Max)
		if term < 0 {
			term = 0
		}
		if term > scorePriceMax {
			term = scorePriceMax
		}
		s += term
	}
	return s
}

func wantsWaterproof(req Request) bool {
	for _, list := range [][]string{req.MustHaves, req.NiceToHaves} {
		for _, tag := range list {
			if strings.EqualFold(strings.TrimSpace(tag), catalog.TagWaterproof) {
				return true
			}
		}
	}
	return false
}

func relaxed(items []catalog.Item, q Query) ([]catalog.Item, Variant) {
	for _, v := range Relaxation {
		if found := Run(items, q.Without(v.drops()...)); len(found) > 0 {
			return found, v
		}
	}
	return nil, VariantFull
}

func targetShops(cat *catalog.Catalog, wanted []string) []string {
	if len(wanted) == 0 {
		return cat.Shops()
	}
	var out []string
	seen := map[string]bool{}
	for _, s := range wanted {
		if cat.HasShop(s) && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func orderedCategories(requested []string) []string {
	if len(requested) == 0 {
		return catalog.CategoryOrder
	}
	want := map[string]bool{}
	for _, c := range requested {
		want[c] = true
	}
	var out []string
	for _, c := range catalog.CategoryOrder {
		if want[c] {
			out = append(out, c)
			delete(want, c)
		}
	}
	for _, c := range requested {
		if want[c] {
			out = append(out, c)
			delete(want, c)
		}
	}
	return out
}

// Query is a single shop/category lookup with every filter resolved.
type Query struct {
	Category string
	Budget   *Budget
	// Deadline is zero when no deadline applies.
	Deadline time.Time
	BaseDate time.Time
	// Attrs maps attribute names to the wanted value. "size" matches
	// against the item's size list.
	Attrs map[string]string
}

func newQuery(req Request, base time.Time) Query {
	q := Query{Budget: req.Budget, BaseDate: base, Attrs: map[string]string{}}
	if d, err := time.Parse(dateLayout, strings.TrimSpace(req.Deadline)); err == nil {
		q.Deadline = d
	}
	p := req.Preferences
	for k, v := range p.Extra {
		if v = strings.TrimSpace(v); v != "" && k != "shops" {
			q.Attrs[k] = v
		}
	}
	for k, v := range map[string]string{"color": p.Color, "brand": p.Brand, "size": p.Size} {
		if v = strings.TrimSpace(v); v != "" {
			q.Attrs[k] = v
		}
	}
	return q
}

// Without returns a copy of q with the named attribute constraints removed.
func (q Query) Without(keys ...string) Query {
	if len(keys) == 0 {
		return q
	}
	attrs := make(map[string]string, len(q.Attrs))
	for k, v := range q.Attrs {
		attrs[k] = v
	}
	for _, k := range keys {
		delete(attrs, k)
	}
	q.Attrs = attrs
	return q
}

// Run applies q to items and returns the matches in input order.
func Run(items []catalog.Item, q Query) []catalog.Item {
	var out []catalog.Item
	for _, it := range items {
		if q.matches(it) {
			out = append(out, it)
		}
	}
	return out
}

func (q Query) matches(it catalog.Item) bool {
	if q.Category != "" && it.Category != q.Category {
		return false
	}
	if q.Budget != nil {
		if it.Price > q.Budget.Max || !strings.EqualFold(it.Currency, q.Budget.Currency) {
			return false
		}
	}
	if !q.Deadline.IsZero() {
		if !it.Attributes.DeliveryKnown {
			return false
		}
		arrival := q.BaseDate.AddDate(0, 0, it.Attributes.DeliveryDaysMax)
		if arrival.After(q.Deadline) {
			return false
		}
	}
	for k, want := range q.Attrs {
		if k == "size" {
			if !it.Attributes.HasSize(want) {
				return false
			}
			continue
		}
		v, ok := it.Attributes.Lookup(k)
		if !ok || !strings.EqualFold(valueText(v), want) {
			return false
		}
	}
	return true
}

func valueText(v catalog.Value) string {
	switch v.Kind {
	case catalog.KindString:
		return strings.TrimSpace(v.Str)
	case catalog.KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case catalog.KindBool:
		return strconv.FormatBool(v.Flag)
	case catalog.KindList:
		return strings.Join(v.List, ",")
	}
	return ""
}
