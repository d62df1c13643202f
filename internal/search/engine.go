package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

// Config tunes the engine. Zero values take defaults.
type Config struct {
	// HybridWeight is the default semantic share of a hybrid score when
	// the query does not set one.
	HybridWeight float64

	// SubqueryTimeout bounds each hybrid sub-query so a slow vector
	// backend cannot stall the whole search.
	SubqueryTimeout time.Duration

	// DefaultLimit applies when a query requests no limit.
	DefaultLimit int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.HybridWeight == 0 {
		c.HybridWeight = DefaultHybridWeight
	}
	if c.SubqueryTimeout == 0 {
		c.SubqueryTimeout = 5 * time.Second
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
}

// Engine dispatches queries to the storage backend and the vector
// store, and merges the two for hybrid mode.
type Engine struct {
	backend store.Backend
	vectors vectorstore.Store
	cfg     Config
	logger  *zap.Logger
}

// NewEngine creates a search engine over the given collaborators. The
// vector store may be nil; vector and hybrid-with-embedding queries
// then degrade or fail accordingly.
func NewEngine(backend store.Backend, vectors vectorstore.Store, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Engine{backend: backend, vectors: vectors, cfg: cfg, logger: logger}
}

// Search runs one query in whatever mode it carries.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.Options.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	switch q.Mode {
	case ModeFilter:
		return e.filter(ctx, *q.Filter, q.Options, limit)
	case ModeFullText:
		return e.fullText(ctx, *q.FullText, q.Options, limit)
	case ModeVector:
		return e.vector(ctx, *q.Vector, q.Options, limit)
	case ModeHybrid:
		return e.hybrid(ctx, *q.Hybrid, q.Options, limit)
	}
	return nil, fmt.Errorf("%w: unknown search mode %q", store.ErrInvalidParams, q.Mode)
}

func (e *Engine) filter(ctx context.Context, p FilterParams, opts Options, limit int) ([]Result, error) {
	matches, err := e.backend.Filter(ctx, store.FilterParams{
		SubjectContains: p.SubjectContains,
		PartyContact:    p.PartyContact,
		Range:           opts.timeRange(),
		Tags:            opts.tagFilter(),
		Sort:            p.Sort,
		Limit:           limit,
	})
	if err != nil {
		return nil, fmt.Errorf("structured filter: %w", err)
	}
	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{UUID: m.UUID, Location: m.Location}
	}
	return out, nil
}

func (e *Engine) fullText(ctx context.Context, p FullTextParams, opts Options, limit int) ([]Result, error) {
	matches, err := e.fullTextMatches(ctx, p, opts, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(matches))
	for i, m := range matches {
		out[i] = Result{UUID: m.UUID, Location: m.Location, Rank: m.Rank}
	}
	return out, nil
}

func (e *Engine) fullTextMatches(ctx context.Context, p FullTextParams, opts Options, limit int) ([]store.Match, error) {
	matches, err := e.backend.FullText(ctx, store.FullTextParams{
		Query:   p.Text,
		MinRank: p.MinRank,
		Range:   opts.timeRange(),
		Tags:    opts.tagFilter(),
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}
	return matches, nil
}

func (e *Engine) vector(ctx context.Context, p VectorParams, opts Options, limit int) ([]Result, error) {
	hits, err := e.vectorResults(ctx, p, opts, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{UUID: h.RecordUUID, Location: locationOf(h.Kind, h.Index), Score: h.Score}
	}
	return out, nil
}

func (e *Engine) vectorResults(ctx context.Context, p VectorParams, opts Options, k int) ([]vectorstore.SearchResult, error) {
	if e.vectors == nil {
		return nil, fmt.Errorf("%w: no vector store configured", store.ErrInvalidParams)
	}
	allow, err := e.allowlist(ctx, opts)
	if err != nil {
		return nil, err
	}
	hits, err := e.vectors.Search(ctx, p.Embedding, k, allow)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if p.MinScore > 0 {
		kept := hits[:0]
		for _, h := range hits {
			if h.Score >= p.MinScore {
				kept = append(kept, h)
			}
		}
		hits = kept
	}
	return hits, nil
}

// allowlist turns the tag/date pre-filter into a record UUID set for the
// vector store, which has no tag index of its own. Nil means no
// restriction.
func (e *Engine) allowlist(ctx context.Context, opts Options) (map[string]bool, error) {
	if len(opts.Tags) == 0 && opts.Since.IsZero() && opts.Until.IsZero() {
		return nil, nil
	}
	matches, err := e.backend.Filter(ctx, store.FilterParams{
		Range: opts.timeRange(),
		Tags:  opts.tagFilter(),
	})
	if err != nil {
		return nil, fmt.Errorf("resolving pre-filter: %w", err)
	}
	allow := make(map[string]bool, len(matches))
	for _, m := range matches {
		allow[m.UUID] = true
	}
	return allow, nil
}

// hybrid fans out to both strategies concurrently, normalizes each score
// set to [0,1], and merges as combined = w*semantic + (1-w)*keyword.
// Without an embedding (or with weight 0) the vector sub-query is
// skipped and the merge reduces to keyword-only.
func (e *Engine) hybrid(ctx context.Context, p HybridParams, opts Options, limit int) ([]Result, error) {
	weight := e.cfg.HybridWeight
	if p.Weight != nil {
		weight = *p.Weight
	}
	hasVector := e.vectors != nil && p.Vector != nil && len(p.Vector.Embedding) > 0

	// Over-fetch each side so the merge has candidates beyond the final
	// page; a record scoring mid-list on both sides can still win.
	subLimit := limit * 3

	g, gctx := errgroup.WithContext(ctx)
	var kw []store.Match
	var vec []vectorstore.SearchResult

	g.Go(func() error {
		sub, cancel := context.WithTimeout(gctx, e.cfg.SubqueryTimeout)
		defer cancel()
		m, err := e.fullTextMatches(sub, p.FullText, opts, subLimit)
		if err != nil {
			return err
		}
		kw = m
		return nil
	})
	if hasVector && weight > 0 {
		g.Go(func() error {
			sub, cancel := context.WithTimeout(gctx, e.cfg.SubqueryTimeout)
			defer cancel()
			h, err := e.vectorResults(sub, *p.Vector, opts, subLimit)
			if err != nil {
				return err
			}
			vec = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeHybrid(kw, vec, weight, limit), nil
}

type hybridEntry struct {
	res    Result
	ftPos  int
	vecPos int
}

// mergeHybrid unions the two result sets by (record, location) and
// orders by combined score. Ties keep full-text order, then vector
// order, then fall back to record UUID and location so the ordering is
// stable across runs.
func mergeHybrid(kw []store.Match, vec []vectorstore.SearchResult, weight float64, limit int) []Result {
	kwNorm := normalizeRanks(kw)
	vecNorm := normalizeScores(vec)

	entries := make(map[string]*hybridEntry, len(kw)+len(vec))
	order := make([]*hybridEntry, 0, len(kw)+len(vec))
	get := func(uuid string, loc store.Location) *hybridEntry {
		key := fmt.Sprintf("%s:%s:%d", uuid, loc.Kind, loc.Index)
		ent, ok := entries[key]
		if !ok {
			ent = &hybridEntry{
				res:    Result{UUID: uuid, Location: loc},
				ftPos:  math.MaxInt,
				vecPos: math.MaxInt,
			}
			entries[key] = ent
			order = append(order, ent)
		}
		return ent
	}

	for i, m := range kw {
		ent := get(m.UUID, m.Location)
		ent.res.Rank = m.Rank
		ent.res.Keyword = kwNorm[i]
		ent.ftPos = i
	}
	for i, h := range vec {
		ent := get(h.RecordUUID, locationOf(h.Kind, h.Index))
		ent.res.Score = h.Score
		ent.res.Semantic = vecNorm[i]
		if ent.vecPos == math.MaxInt {
			ent.vecPos = i
		}
	}
	for _, ent := range order {
		ent.res.Combined = weight*ent.res.Semantic + (1-weight)*ent.res.Keyword
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.res.Combined != b.res.Combined {
			return a.res.Combined > b.res.Combined
		}
		if a.ftPos != b.ftPos {
			return a.ftPos < b.ftPos
		}
		if a.vecPos != b.vecPos {
			return a.vecPos < b.vecPos
		}
		if a.res.UUID != b.res.UUID {
			return a.res.UUID < b.res.UUID
		}
		if a.res.Location.Kind != b.res.Location.Kind {
			return a.res.Location.Kind < b.res.Location.Kind
		}
		return a.res.Location.Index < b.res.Location.Index
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	out := make([]Result, len(order))
	for i, ent := range order {
		out[i] = ent.res
	}
	return out
}

// normalizeRanks min-max scales full-text ranks to [0,1]. A uniform set
// (including a single hit) maps to 1.0 so lone matches are not zeroed.
func normalizeRanks(matches []store.Match) []float64 {
	if len(matches) == 0 {
		return nil
	}
	lo, hi := matches[0].Rank, matches[0].Rank
	for _, m := range matches[1:] {
		lo = math.Min(lo, m.Rank)
		hi = math.Max(hi, m.Rank)
	}
	out := make([]float64, len(matches))
	for i, m := range matches {
		if hi == lo {
			out[i] = 1
			continue
		}
		out[i] = (m.Rank - lo) / (hi - lo)
	}
	return out
}

func normalizeScores(hits []vectorstore.SearchResult) []float64 {
	if len(hits) == 0 {
		return nil
	}
	lo, hi := float64(hits[0].Score), float64(hits[0].Score)
	for _, h := range hits[1:] {
		lo = math.Min(lo, float64(h.Score))
		hi = math.Max(hi, float64(h.Score))
	}
	out := make([]float64, len(hits))
	for i, h := range hits {
		if hi == lo {
			out[i] = 1
			continue
		}
		out[i] = (float64(h.Score) - lo) / (hi - lo)
	}
	return out
}

func locationOf(kind vectorstore.ContentKind, index int) store.Location {
	loc := store.Location{Kind: store.LocationKind(kind), Index: index}
	if kind == vectorstore.KindSubject {
		loc.Index = 0
	}
	return loc
}
