package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCurrency is assigned to every CSV-loaded item.
const DefaultCurrency = "USD"

// TagWaterproof is added to FeatureTags for items with a waterproof rating.
const TagWaterproof = "waterproof"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases s and collapses every run of non-alphanumerics into "-".
func Slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// NormalizeCategory maps retailer category spellings onto the pipeline's names.
func NormalizeCategory(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch t {
	case "base_top", "base", "baselayer", "base_layer":
		return CategoryBaseLayer
	case "base_bottom", "basebottom":
		return CategoryBaseBottom
	}
	return t
}

// LoadCSV parses one retailer export. Rows describing the same product in
// different sizes are merged into a single item whose Sizes is the union of
// the rows' sizes (first-seen order) and whose delivery window spans them.
func LoadCSV(shop string, r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"item", "brand", "category", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Item
	index := map[string]int{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		title := field(rec, "item")
		brand := field(rec, "brand")
		category := NormalizeCategory(field(rec, "category"))
		price := number(field(rec, "price"))
		if title == "" || brand == "" || category == "" || price == 0 {
			continue
		}
		color := strings.ToLower(field(rec, "color"))
		style := field(rec, "style")
		url := field(rec, "url")
		size := field(rec, "size")
		days, daysOK := deliveryDays(field(rec, "time_of_delivery_days"))

		key := strings.Join([]string{title, brand, category, color, style, strconv.FormatFloat(price, 'f', -1, 64), url}, "|")
		pos, seen := index[key]
		if !seen {
			rating := waterproofRating(field(rec, "waterproof"))
			attrs := Attributes{
				Color:            color,
				Brand:            brand,
				Style:            style,
				Gender:           strings.ToLower(field(rec, "gender")),
				Image:            field(rec, "image"),
				Sizes:            []string{},
				Waterproof:       rating > 0,
				WaterproofRating: rating,
				Warmth:           number(field(rec, "warmth")),
			}
			if rating > 0 {
				attrs.FeatureTags = []string{TagWaterproof}
			}
			raw := shop + "-" + title + "-" + color + "-" + style
			if len(raw) > 60 {
				raw = raw[:60]
			}
			out = append(out, Item{
				ID:         Slug(raw),
				Title:      title,
				Category:   category,
				Price:      price,
				Currency:   DefaultCurrency,
				Shop:       shop,
				URL:        url,
				Attributes: attrs,
			})
			pos = len(out) - 1
			index[key] = pos
		}

		a := &out[pos].Attributes
		if size != "" && !containsFold(a.Sizes, size) {
			a.Sizes = append(a.Sizes, size)
		}
		switch {
		case !daysOK:
		case !a.DeliveryKnown:
			a.DeliveryDaysMin, a.DeliveryDaysMax, a.DeliveryKnown = days, days, true
		case days < a.DeliveryDaysMin:
			a.DeliveryDaysMin = days
		case days > a.DeliveryDaysMax:
			a.DeliveryDaysMax = days
		}
	}
	return out, nil
}

func number(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		return 0
	}
	return f
}

// deliveryDays parses a whole, non-negative day count. Blank or garbled
// cells report false rather than zero days.
func deliveryDays(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Ceil(f)), true
}

func waterproofRating(s string) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil && b {
		return 1
	}
	if strings.EqualFold(s, "yes") {
		return 1
	}
	return 0
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
