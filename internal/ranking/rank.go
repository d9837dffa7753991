package ranking

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-outfit-pipeline/internal/assembly"
	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
)

const (
	// TopN is how many outfits are returned.
	TopN = 3
	// DefaultExplainTimeout bounds a single explanation call.
	DefaultExplainTimeout = 8 * time.Second
)

// Explainer turns a prompt and an outfit description into a short opinion.
type Explainer interface {
	Explain(ctx context.Context, prompt, description string) (string, error)
}

// Random picks the first outfit among equally scored leaders.
// *rand.Rand from math/rand/v2 satisfies it.
type Random interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// RankedOutfit is one entry of the final recommendation list.
type RankedOutfit struct {
	OutfitID    string `json:"outfitId"`
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
}

// Result is the ranking stage output.
type Result struct {
	Ranked        []RankedOutfit   `json:"ranked"`
	RecommendedID string           `json:"recommendedOutfitId,omitempty"`
	Scores        []ScoreBreakdown `json:"scores"`
}

// Ranker scores bundles and explains the best ones. It holds no per-call
// state and is safe for concurrent use when its Random is.
type Ranker struct {
	explainer Explainer
	rnd       Random
	timeout   time.Duration
	log       *logger.Logger
}

type Option func(*Ranker)

func WithExplainer(e Explainer) Option { return func(r *Ranker) { r.explainer = e } }

// WithRandom pins the tie-break source, e.g. rand.New(rand.NewPCG(1, 2)).
func WithRandom(rnd Random) Option { return func(r *Ranker) { r.rnd = rnd } }

func WithExplainTimeout(d time.Duration) Option {
	return func(r *Ranker) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(r *Ranker) { r.log = logger.OrNop(l) } }

func New(opts ...Option) *Ranker {
	r := &Ranker{rnd: globalRand{}, timeout: DefaultExplainTimeout, log: logger.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

type scoredBundle struct {
	bundle assembly.Bundle
	ScoreBreakdown
}

// Rank scores every bundle, shuffles the leading score tier, keeps TopN and
// explains them. Explanation failures fall back to a template and are never
// returned as errors.
func (r *Ranker) Rank(ctx context.Context, bundles []assembly.Bundle, items []catalog.Item, prompt string, cfg Config) Result {
	res := Result{Ranked: []RankedOutfit{}, Scores: []ScoreBreakdown{}}
	if len(bundles) == 0 {
		return res
	}

	byID := make(map[string]catalog.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	totals := make([]float64, len(bundles))
	for i, b := range bundles {
		totals[i] = b.TotalPrice.Amount
	}
	prompt = strings.TrimSpace(prompt)
	w := cfg.weights()

	scored := make([]scoredBundle, len(bundles))
	for i, b := range bundles {
		coherence := NeutralCoherence
		if prompt != "" && len(items) > 0 {
			coherence = Coherence(prompt, outfitText(b, byID))
		}
		price := PriceScore(b.TotalPrice.Amount, totals, cfg.BudgetMax)
		scored[i] = scoredBundle{bundle: b, ScoreBreakdown: ScoreBreakdown{
			OutfitID:  b.ID,
			Price:     price,
			Coherence: coherence,
			Combined:  Combine(price, coherence, w),
		}}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Combined > scored[j].Combined })

	tier := 1
	for tier < len(scored) && scored[tier].Combined == scored[0].Combined {
		tier++
	}
	if tier > 1 {
		pick := r.rnd.IntN(tier)
		lead := scored[pick]
		copy(scored[1:pick+1], scored[:pick])
		scored[0] = lead
	}

	for _, s := range scored {
		res.Scores = append(res.Scores, s.ScoreBreakdown)
	}
	if len(scored) > TopN {
		scored = scored[:TopN]
	}

	explanations := make([]string, len(scored))
	var g errgroup.Group
	for i, s := range scored {
		explanations[i] = Template(s.bundle.TotalPrice, s.Combined)
		if prompt == "" || len(items) == 0 || r.explainer == nil {
			continue
		}
		g.Go(func() error {
			if text, ok := r.explain(ctx, prompt, Describe(s.bundle, byID)); ok {
				explanations[i] = text
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, s := range scored {
		res.Ranked = append(res.Ranked, RankedOutfit{OutfitID: s.OutfitID, Score: s.Combined, Explanation: explanations[i]})
	}
	res.RecommendedID = res.Ranked[0].OutfitID
	return res
}

func (r *Ranker) explain(ctx context.Context, prompt, desc string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := r.explainer.Explain(ctx, prompt, desc)
		ch <- reply{text, err}
	}()

	select {
	case <-ctx.Done():
		r.log.Warn("explanation timed out, using template", "error", ctx.Err())
		return "", false
	case rep := <-ch:
		if rep.err != nil {
			r.log.Warn("explanation failed, using template", "error", rep.err)
			return "", false
		}
		text := strings.TrimSpace(rep.text)
		if text == "" {
			r.log.Warn("explanation empty, using template")
			return "", false
		}
		return text, true
	}
}

// Template is the deterministic explanation used without a prompt or when
// the explainer is unavailable.
func Template(total assembly.Money, score int) string {
	return fmt.Sprintf("Price: %s %s. Score: %d.", total.Currency, assembly.FormatAmount(total.Amount), score)
}

// Describe lists a bundle's items as "category: title (shop, CUR price)"
// followed by the total.
func Describe(b assembly.Bundle, byID map[string]catalog.Item) string {
	parts := make([]string, 0, len(b.Items)+1)
	for _, ref := range b.Items {
		it, ok := byID[ref.ItemID]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s, %s %s)", it.Category, it.Title, it.Shop, it.Currency, assembly.FormatAmount(it.Price)))
	}
	parts = append(parts, fmt.Sprintf("Total: %s %s", b.TotalPrice.Currency, assembly.FormatAmount(b.TotalPrice.Amount)))
	return strings.Join(parts, ". ")
}
