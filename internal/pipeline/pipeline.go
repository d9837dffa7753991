// Package pipeline chains search, assembly and ranking into one call.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/imrishuroy/go-outfit-pipeline/internal/assembly"
	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/ranking"
	"github.com/imrishuroy/go-outfit-pipeline/internal/search"
)

// Short-circuit reasons.
const (
	ReasonMissingPrefix = "Missing required information: "
	ReasonNoItems       = "No items found matching your criteria"
)

// Metric names emitted once per run.
const (
	MetricSearchCandidates = "SearchCandidates"
	MetricQueryAttempts    = "QueryAttempts"
	MetricBundlesAssembled = "BundlesAssembled"
	MetricInfeasible       = "Infeasible"
	MetricLatency          = "PipelineLatencyMs"
)

// Units understood by Recorder implementations.
const (
	UnitCount        = "Count"
	UnitMilliseconds = "Milliseconds"
)

// Recorder receives run metrics. Implementations report their own failures.
type Recorder interface {
	Record(ctx context.Context, name string, value float64, unit string)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, float64, string) {}

// Result is the composed output of one run.
type Result struct {
	Items               []catalog.Item           `json:"items"`
	OutfitOptions       []assembly.Bundle        `json:"outfitOptions"`
	Ranked              []ranking.RankedOutfit   `json:"ranked"`
	RecommendedOutfitID string                   `json:"recommendedOutfitId,omitempty"`
	InfeasibleReason    string                   `json:"infeasibleReason,omitempty"`
	MissingInfo         []string                 `json:"missingInfo,omitempty"`
	QueryMeta           search.QueryMeta         `json:"queryMeta"`
	Relaxed             bool                     `json:"relaxed"`
	Scores              []ranking.ScoreBreakdown `json:"scores,omitempty"`
}

// Pipeline holds the collaborators shared by every run.
type Pipeline struct {
	catalog    *catalog.Catalog
	ranker     *ranking.Ranker
	weights    ranking.Weights
	searchOpts []search.Option
	metrics    Recorder
	log        *logger.Logger
	nowFunc    func() time.Time
}

type Option func(*Pipeline)

func WithRanker(r *ranking.Ranker) Option { return func(p *Pipeline) { p.ranker = r } }

// WithWeights overrides the ranking weights for every run.
func WithWeights(w ranking.Weights) Option { return func(p *Pipeline) { p.weights = w } }

func WithSearchOptions(opts ...search.Option) Option {
	return func(p *Pipeline) { p.searchOpts = append(p.searchOpts, opts...) }
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.metrics = r
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(p *Pipeline) { p.log = logger.OrNop(l) } }

// New panics when cat is nil.
func New(cat *catalog.Catalog, opts ...Option) *Pipeline {
	if cat == nil {
		panic("pipeline: nil catalog")
	}
	p := &Pipeline{
		catalog: cat,
		metrics: nopRecorder{},
		log:     logger.Nop(),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.ranker == nil {
		p.ranker = ranking.New(ranking.WithLogger(p.log))
	}
	p.log = p.log.With("component", "pipeline")
	return p
}

// Run searches the catalog, assembles outfits and ranks them. Unsatisfiable
// requests are reported through InfeasibleReason and MissingInfo, never as
// errors.
func (p *Pipeline) Run(ctx context.Context, req search.Request, prompt string) Result {
	return p.RunWeighted(ctx, req, prompt, p.weights)
}

// RunWeighted is Run with ranking weights for this call only.
func (p *Pipeline) RunWeighted(ctx context.Context, req search.Request, prompt string, w ranking.Weights) Result {
	start := p.nowFunc()
	res := Result{
		Items:         []catalog.Item{},
		OutfitOptions: []assembly.Bundle{},
		Ranked:        []ranking.RankedOutfit{},
	}
	defer func() { p.record(ctx, res, p.nowFunc().Sub(start)) }()

	found := search.Search(p.catalog, req, p.searchOpts...)
	res.QueryMeta = found.QueryMeta
	res.Relaxed = found.Relaxed
	if len(found.MissingInfo) > 0 {
		res.MissingInfo = found.MissingInfo
		res.InfeasibleReason = ReasonMissingPrefix + strings.Join(found.MissingInfo, ", ")
		p.log.Info("request incomplete", "missing", found.MissingInfo)
		return res
	}
	if len(found.Items) == 0 {
		res.InfeasibleReason = ReasonNoItems
		p.log.Info("no candidates", "shops", found.QueryMeta.RequestedShops)
		return res
	}
	res.Items = found.Items
	if found.Relaxed {
		p.log.Debug("relaxed search", "relaxations", found.Relaxations)
	}

	assembled := assembly.Assemble(found.Items, assembly.Constraints{
		Budget:      req.Budget,
		MustHaves:   req.MustHaves,
		NiceToHaves: req.NiceToHaves,
	})
	if assembled.InfeasibleReason != "" {
		res.InfeasibleReason = assembled.InfeasibleReason
		p.log.Info("assembly infeasible", "reason", assembled.InfeasibleReason, "generated", assembled.Generated)
		return res
	}
	res.OutfitOptions = assembled.Bundles
	if assembled.Truncated {
		p.log.Warn("combination cap reached", "generated", assembled.Generated)
	}

	cfg := ranking.Config{Weights: w}
	if req.Budget != nil {
		cfg.BudgetMax = req.Budget.Max
	}
	ranked := p.ranker.Rank(ctx, assembled.Bundles, found.Items, prompt, cfg)
	res.Ranked = ranked.Ranked
	res.RecommendedOutfitID = ranked.RecommendedID
	res.Scores = ranked.Scores
	return res
}

func (p *Pipeline) record(ctx context.Context, res Result, elapsed time.Duration) {
	infeasible := 0.0
	if res.InfeasibleReason != "" {
		infeasible = 1
	}
	p.metrics.Record(ctx, MetricSearchCandidates, float64(len(res.Items)), UnitCount)
	p.metrics.Record(ctx, MetricQueryAttempts, float64(res.QueryMeta.AttemptedRequests), UnitCount)
	p.metrics.Record(ctx, MetricBundlesAssembled, float64(len(res.OutfitOptions)), UnitCount)
	p.metrics.Record(ctx, MetricInfeasible, infeasible, UnitCount)
	p.metrics.Record(ctx, MetricLatency, float64(elapsed.Milliseconds()), UnitMilliseconds)
}
