package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Categories recognized by the pipeline.
const (
	CategoryJacket     = "jacket"
	CategoryPants      = "pants"
	CategoryBoots      = "boots"
	CategoryGloves     = "gloves"
	CategoryBaseLayer  = "baseLayer"
	CategoryBaseBottom = "baseBottom"
)

// CategoryOrder is the fixed order used when concatenating per-category results.
var CategoryOrder = []string{
	CategoryJacket,
	CategoryPants,
	CategoryBoots,
	CategoryGloves,
	CategoryBaseLayer,
	CategoryBaseBottom,
}

// RequiredCategories must each appear exactly once in an outfit.
var RequiredCategories = []string{
	CategoryJacket,
	CategoryPants,
	CategoryBoots,
	CategoryGloves,
	CategoryBaseLayer,
}

// OptionalCategories join an outfit only when candidates exist for them.
var OptionalCategories = []string{CategoryBaseBottom}

// Item is one catalog entry. Items are never mutated after the catalog is built.
type Item struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Category   string     `json:"category"`
	Price      float64    `json:"price"`
	Currency   string     `json:"currency"`
	Shop       string     `json:"shop"`
	URL        string     `json:"url,omitempty"`
	Attributes Attributes `json:"attributes"`
}

// Kind tags the active member of a Value.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindList
)

// Value is an attribute value that is a string, number, boolean or list of strings.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Flag bool
	List []string
}

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value { return Value{Kind: KindBool, Flag: b} }
func List(l ...string) Value { return Value{Kind: KindList, List: l} }
func (v Value) IsZero() bool { return v.Kind == 0 }
func (v Value) IsTrue() bool { return v.Kind == KindBool && v.Flag }

// Text returns the lower-cased, trimmed string form of a string value.
func (v Value) Text() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(v.Str)), true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Flag)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Value{}
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case bool:
		*v = Bool(t)
	case []any:
		list := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return fmt.Errorf("attribute list element %v is not a string", e)
			}
			list = append(list, s)
		}
		*v = List(list...)
	default:
		return fmt.Errorf("unsupported attribute value %s", string(data))
	}
	return nil
}

// Attributes holds the recognized item attributes as typed fields. Anything
// else a catalog source provides goes to Extra.
type Attributes struct {
	Color            string
	Brand            string
	Style            string
	Gender           string
	Image            string
	Sizes            []string
	Waterproof       bool
	WaterproofRating float64
	Warmth           float64
	DeliveryDaysMin  int
	DeliveryDaysMax  int
	// DeliveryKnown is false when no source row stated a delivery time;
	// the window is then meaningless and deadline filters exclude the item.
	DeliveryKnown    bool
	FeatureTags      []string
	Extra            map[string]Value
}

// Lookup resolves an attribute by its wire name.
func (a Attributes) Lookup(name string) (Value, bool) {
	switch name {
	case "color":
		return stringValue(a.Color)
	case "brand":
		return stringValue(a.Brand)
	case "style":
		return stringValue(a.Style)
	case "gender":
		return stringValue(a.Gender)
	case "image":
		return stringValue(a.Image)
	case "sizes":
		return List(a.Sizes...), true
	case "waterproof":
		return Bool(a.Waterproof), true
	case "waterproofRating":
		return Number(a.WaterproofRating), true
	case "warmth":
		return Number(a.Warmth), true
	case "deliveryDaysMin":
		return Number(float64(a.DeliveryDaysMin)), a.DeliveryKnown
	case "deliveryDaysMax":
		return Number(float64(a.DeliveryDaysMax)), a.DeliveryKnown
	case "featureTags":
		return List(a.FeatureTags...), true
	}
	v, ok := a.Extra[name]
	return v, ok
}

// Flag reports whether the named attribute exists and is boolean true.
func (a Attributes) Flag(name string) bool {
	v, ok := a.Lookup(name)
	return ok && v.IsTrue()
}

// HasTag reports whether tag is listed in FeatureTags.
func (a Attributes) HasTag(tag string) bool {
	for _, t := range a.FeatureTags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasSize matches size case-insensitively against Sizes.
func (a Attributes) HasSize(size string) bool {
	want := strings.ToLower(strings.TrimSpace(size))
	for _, s := range a.Sizes {
		if strings.ToLower(strings.TrimSpace(s)) == want {
			return true
		}
	}
	return false
}

func stringValue(s string) (Value, bool) {
	if s == "" {
		return Value{}, false
	}
	return String(s), true
}

// MarshalJSON flattens the attributes into a single object.
func (a Attributes) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, len(a.Extra)+12)
	for k, v := range a.Extra {
		out[k] = v
	}
	for _, name := range []string{"color", "brand", "style", "gender", "image"} {
		if v, ok := a.Lookup(name); ok {
			out[name] = v
		}
	}
	sizes := a.Sizes
	if sizes == nil {
		sizes = []string{}
	}
	out["sizes"] = List(sizes...)
	out["waterproof"] = Bool(a.Waterproof)
	out["waterproofRating"] = Number(a.WaterproofRating)
	out["warmth"] = Number(a.Warmth)
	if a.DeliveryKnown {
		out["deliveryDaysMin"] = Number(float64(a.DeliveryDaysMin))
		out["deliveryDaysMax"] = Number(float64(a.DeliveryDaysMax))
	}
	if len(a.FeatureTags) > 0 {
		out["featureTags"] = List(a.FeatureTags...)
	}
	return json.Marshal(out)
}
