package ranking

import (
	"math"
	"regexp"
	"strings"

	"github.com/imrishuroy/go-outfit-pipeline/internal/assembly"
	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
)

// NeutralCoherence is assigned when there is nothing to compare against.
const NeutralCoherence = 50

// Weights blend the price and coherence axes.
type Weights struct {
	Price     float64 `json:"price"`
	Coherence float64 `json:"coherence"`
}

// DefaultWeights favor coherence with the prompt over price.
var DefaultWeights = Weights{Price: 0.2, Coherence: 0.8}

// Config tunes scoring. A zero BudgetMax scores price relative to the
// other bundles; zero Weights use DefaultWeights.
type Config struct {
	BudgetMax float64 `json:"budgetMax,omitempty"`
	Weights   Weights `json:"weights"`
}

func (c Config) weights() Weights {
	if c.Weights.Price == 0 && c.Weights.Coherence == 0 {
		return DefaultWeights
	}
	return c.Weights
}

// ScoreBreakdown is the per-bundle scoring detail.
type ScoreBreakdown struct {
	OutfitID  string `json:"outfitId"`
	Price     int    `json:"price"`
	Coherence int    `json:"coherence"`
	Combined  int    `json:"combined"`
}

// PriceScore rates a total in [0, 100]. Over budget is 0. Without a budget
// the total is placed between the cheapest and dearest of all totals.
func PriceScore(total float64, all []float64, budgetMax float64) int {
	if budgetMax > 0 {
		if total > budgetMax {
			return 0
		}
		return clamp(int(math.Round(100 * (1 - total/budgetMax))))
	}
	if len(all) == 0 {
		return 100
	}
	lo, hi := all[0], all[0]
	for _, p := range all[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	if hi == lo {
		return 100
	}
	return clamp(int(math.Round(100 * (1 - (total-lo)/(hi-lo)))))
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Words lower-cases text, turns punctuation into spaces and returns the set
// of tokens longer than one character.
func Words(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(nonWord.ReplaceAllString(strings.ToLower(text), " ")) {
		if len(w) > 1 {
			out[w] = struct{}{}
		}
	}
	return out
}

// Coherence measures how much of the prompt the outfit's titles and
// categories cover, scaled by 1.5 and capped at 100.
func Coherence(prompt string, outfitText string) int {
	pw := Words(prompt)
	ow := Words(outfitText)
	if len(pw) == 0 || len(ow) == 0 {
		return NeutralCoherence
	}
	m := 0
	for w := range pw {
		if _, ok := ow[w]; ok {
			m++
		}
	}
	return int(math.Round(math.Min(100, float64(m)/float64(len(pw))*150)))
}

// Combine blends the two axes with w.
func Combine(price, coherence int, w Weights) int {
	return clamp(int(math.Round(w.Price*float64(price) + w.Coherence*float64(coherence))))
}

func outfitText(b assembly.Bundle, byID map[string]catalog.Item) string {
	parts := make([]string, 0, len(b.Items))
	for _, ref := range b.Items {
		if it, ok := byID[ref.ItemID]; ok {
			parts = append(parts, it.Title+" "+it.Category)
		}
	}
	return strings.Join(parts, " ")
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
