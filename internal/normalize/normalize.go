// Package normalize turns a shopper's free-text messages into a structured
// search request using keyword heuristics. It never calls out to a model.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/search"
)

// Decision records whether the shopper wants a category.
type Decision string

const (
	Yes      Decision = "yes"
	No       Decision = "no"
	Optional Decision = "optional"
)

// Missing keys, reported in Output.Missing.
const (
	MissingScope    = "scope"
	MissingItems    = "items"
	MissingBudget   = "budget"
	MissingDeadline = "deliveryDeadline"
	MissingColor    = "color"
	MissingSizes    = "sizes"
	MissingBootSize = "bootSize"
)

const historyWindow = 20

// Output is the normalized view of the conversation so far.
type Output struct {
	Request            search.Request      `json:"request"`
	Items              map[string]Decision `json:"items"`
	BootSize           string              `json:"bootSize,omitempty"`
	Missing            []string            `json:"missing,omitempty"`
	ClarifyingQuestion *string             `json:"clarifyingQuestion"`
}

// Input is one conversational turn plus its context.
type Input struct {
	Message  string   `json:"message" validate:"required"`
	History  []string `json:"history,omitempty"`
	Previous *Output  `json:"previous,omitempty"`
}

// Normalizer is stateless apart from its clock.
type Normalizer struct {
	now func() time.Time
}

type Option func(*Normalizer)

// WithClock sets the "today" used for relative deadlines.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize merges the current message and history into the previous output
// and asks at most one clarifying question.
func (n *Normalizer) Normalize(in Input) Output {
	history := in.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	text := strings.Join(append([]string{in.Message}, history...), "\n")
	lower := strings.ToLower(text)

	next := Output{Items: inferItems(lower)}
	if wantsFullSuit(lower) {
		for _, c := range itemCategories {
			next.Items[c] = Yes
		}
	}
	out := merge(in.Previous, next)

	r := &out.Request
	if r.Budget == nil {
		r.Budget = parseBudget(lower)
	}
	if r.Deadline == "" {
		r.Deadline = n.parseDeadline(lower)
	}
	if r.Preferences.Color == "" {
		r.Preferences.Color = parseColor(lower)
	}
	if r.Preferences.Size == "" {
		r.Preferences.Size = parseAlphaSize(lower)
	}
	if out.BootSize == "" {
		out.BootSize = parseBootSize(lower)
	}
	if strings.Contains(lower, "waterproof") || strings.Contains(lower, "gore-tex") || strings.Contains(lower, "goretex") {
		r.NiceToHaves = uniq(append(r.NiceToHaves, catalog.TagWaterproof))
	}

	out.Missing = missing(out, lower)
	out.ClarifyingQuestion = nil
	if len(out.Missing) > 0 && !wantsBestGuess(lower) {
		if q := question(out.Missing); q != "" {
			out.ClarifyingQuestion = &q
		}
	}
	return out
}

var itemCategories = []string{
	catalog.CategoryJacket,
	catalog.CategoryPants,
	catalog.CategoryBaseLayer,
	catalog.CategoryGloves,
	catalog.CategoryBoots,
}

var (
	itemYes = map[string]*regexp.Regexp{
		catalog.CategoryBoots:     regexp.MustCompile(`\bboots?\b`),
		catalog.CategoryGloves:    regexp.MustCompile(`\bgloves?\b`),
		catalog.CategoryBaseLayer: regexp.MustCompile(`\b(base[-\s]?layers?|baselayers?)\b`),
		catalog.CategoryPants:     regexp.MustCompile(`\bpants?\b`),
		catalog.CategoryJacket:    regexp.MustCompile(`\bjackets?\b`),
	}
	itemNo = map[string]*regexp.Regexp{
		catalog.CategoryBoots:     regexp.MustCompile(`\b(no|not|don't|without|exclude)\b.{0,20}\bboots?\b`),
		catalog.CategoryGloves:    regexp.MustCompile(`\b(no|not|don't|without|exclude)\b.{0,20}\bgloves?\b`),
		catalog.CategoryBaseLayer: regexp.MustCompile(`\b(no|not|don't|without|exclude)\b.{0,20}\b(base[-\s]?layer|baselayer)\b`),
		catalog.CategoryPants:     regexp.MustCompile(`\b(no|not|don't|without|exclude)\b.{0,20}\bpants?\b`),
		catalog.CategoryJacket:    regexp.MustCompile(`\b(no|not|don't|without|exclude)\b.{0,20}\bjackets?\b`),
	}
)

func inferItems(lower string) map[string]Decision {
	items := make(map[string]Decision, len(itemCategories))
	for _, c := range itemCategories {
		switch {
		case itemNo[c].MatchString(lower):
			items[c] = No
		case itemYes[c].MatchString(lower):
			items[c] = Yes
		default:
			items[c] = Optional
		}
	}
	return items
}

func merge(prev *Output, next Output) Output {
	if prev == nil {
		return next
	}
	out := next
	out.Request = prev.Request
	out.Request.MustHaves = uniq(append([]string{}, prev.Request.MustHaves...))
	out.Request.NiceToHaves = uniq(append([]string{}, prev.Request.NiceToHaves...))
	out.BootSize = prev.BootSize
	out.Items = make(map[string]Decision, len(itemCategories))
	for _, c := range itemCategories {
		switch n, p := next.Items[c], prev.Items[c]; {
		case n == Yes || n == No:
			out.Items[c] = n
		case p == Yes || p == No:
			out.Items[c] = p
		default:
			out.Items[c] = Optional
		}
	}
	return out
}

func uniq(list []string) []string {
	seen := map[string]bool{}
	out := list[:0]
	for _, s := range list {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

var skiKeywords = []string{
	"ski", "snow", "resort", "slopes", "powder", "base layer", "baselayer", "shell",
	"insulated", "waterproof", "gore-tex", "thermal", "snowboard", "gloves", "boots", "helmet",
}

var itemKeywords = []string{"jacket", "pant", "base layer", "base-layer", "baselayer", "glove", "boot"}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func wantsFullSuit(lower string) bool {
	return containsAny(lower, []string{"full suit", "full outfit", "full set", "complete outfit", "ski suit", "ski-suit", "full ski"})
}

func wantsBestGuess(lower string) bool {
	return containsAny(lower, []string{
		"best guess", "do your best", "stop asking", "don't ask", "no more questions",
		"just pick", "use your judgment", "use your judgement",
	})
}

var (
	dollarRe   = regexp.MustCompile(`\$\s*(\d[\d,]*)`)
	usdWordRe  = regexp.MustCompile(`(\d[\d,]*)\s*(?:usd|dollars?|bucks)\b`)
	euroRe     = regexp.MustCompile(`€\s*(\d[\d,]*)`)
	euroWordRe = regexp.MustCompile(`(\d[\d,]*)\s*(?:eur|euros?)\b`)
)

func parseBudget(lower string) *search.Budget {
	for _, p := range []struct {
		re       *regexp.Regexp
		currency string
	}{{dollarRe, "USD"}, {usdWordRe, "USD"}, {euroRe, "EUR"}, {euroWordRe, "EUR"}} {
		if m := p.re.FindStringSubmatch(lower); m != nil {
			if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && v > 0 {
				return &search.Budget{Currency: p.currency, Max: float64(v)}
			}
		}
	}
	return nil
}

var (
	inWeeksRe = regexp.MustCompile(`in\s+(\d+)\s+weeks?`)
	inDaysRe  = regexp.MustCompile(`in\s+(\d+)\s+days?`)
	isoDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

func (n *Normalizer) parseDeadline(lower string) string {
	today := n.now()
	after := func(days int) string { return today.AddDate(0, 0, days).Format("2006-01-02") }

	if strings.Contains(lower, "this week") {
		return after(7)
	}
	if m := inWeeksRe.FindStringSubmatch(lower); m != nil {
		w, _ := strconv.Atoi(m[1])
		return after(7 * w)
	}
	if m := inDaysRe.FindStringSubmatch(lower); m != nil {
		d, _ := strconv.Atoi(m[1])
		return after(d)
	}
	if containsAny(lower, []string{"no rush", "whenever", "no hurry"}) {
		return after(30)
	}
	if strings.Contains(lower, "next week") {
		return after(14)
	}
	if m := isoDateRe.FindString(lower); m != "" {
		if _, err := time.Parse("2006-01-02", m); err == nil {
			return m
		}
	}
	return ""
}

var colorRe = regexp.MustCompile(`\b(black|navy|red|blue|gray|grey|white|green|orange|yellow|purple|pink)\b`)

func parseColor(lower string) string {
	c := colorRe.FindString(lower)
	if c == "gray" {
		return "grey"
	}
	return c
}

var (
	sizeTaggedRe = regexp.MustCompile(`\bsize\s*(xxxl|xxl|xl|xs|s|m|l)\b`)
	sizeBareRe   = regexp.MustCompile(`\b(xxxl|xxl|xl|xs|s|m|l)\b`)
	sizeWordRe   = regexp.MustCompile(`\b(extra\s*small|extra\s*large|small|medium|large)\b`)
	sizeWords    = map[string]string{"small": "S", "medium": "M", "large": "L"}
)

func parseAlphaSize(lower string) string {
	// contractions like "i'm" or "it's" must not read as sizes
	t := strings.NewReplacer("'", "", "’", "").Replace(lower)
	if m := sizeTaggedRe.FindStringSubmatch(t); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := sizeWordRe.FindString(t); m != "" {
		f := strings.Fields(m)
		if len(f) == 2 || strings.HasPrefix(m, "extra") {
			if strings.HasSuffix(m, "small") {
				return "XS"
			}
			return "XL"
		}
		return sizeWords[m]
	}
	if m := sizeBareRe.FindString(t); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}

var (
	bootRegionRe = regexp.MustCompile(`\b(us|eu|uk)\s*(\d{1,2}(?:\.\d)?)\b`)
	bootSizeRe   = regexp.MustCompile(`\b(?:boot|shoe)s?\s*(?:size)?\s*(\d{1,2}(?:\.\d)?)\b`)
)

func parseBootSize(lower string) string {
	if m := bootRegionRe.FindStringSubmatch(lower); m != nil {
		return strings.ToUpper(m[1]) + " " + m[2]
	}
	if m := bootSizeRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	return ""
}

func missing(out Output, lower string) []string {
	if !containsAny(lower, skiKeywords) {
		return []string{MissingScope}
	}
	var miss []string
	anyYes := false
	for _, d := range out.Items {
		if d == Yes {
			anyYes = true
		}
	}
	if !anyYes && !wantsFullSuit(lower) && !containsAny(lower, itemKeywords) {
		miss = append(miss, MissingItems)
	}
	if out.Request.Budget == nil {
		miss = append(miss, MissingBudget)
	}
	if out.Request.Deadline == "" {
		miss = append(miss, MissingDeadline)
	}
	if out.Request.Preferences.Color == "" {
		miss = append(miss, MissingColor)
	}
	if out.Request.Preferences.Size == "" {
		miss = append(miss, MissingSizes)
	}
	if out.Items[catalog.CategoryBoots] == Yes && out.BootSize == "" {
		miss = append(miss, MissingBootSize)
	}
	return miss
}

var questions = []struct {
	key, text string
}{
	{MissingScope, "Are you shopping for a ski outfit (jacket/pants/base layer/gloves/boots)?"},
	{MissingItems, "Which items do you want to shop for? Options: jackets, pants, base layer, gloves, boots."},
	{MissingBudget, "What's your total budget (and currency)?"},
	{MissingDeadline, "What delivery date do you need (or when is your trip)?"},
	{MissingColor, "Any color preference (e.g., black, navy, red)?"},
	{MissingBootSize, "What boot size do you wear (US/EU/UK)?"},
	{MissingSizes, "What size do you wear for jackets and pants (e.g., M)?"},
}

func question(miss []string) string {
	set := map[string]bool{}
	for _, m := range miss {
		set[m] = true
	}
	for _, q := range questions {
		if set[q.key] {
			return q.text
		}
	}
	return ""
}
