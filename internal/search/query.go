// Package search reconciles the three retrieval strategies - structured
// filter, full-text relevance, and vector similarity - behind a single
// engine, and implements the weighted hybrid merge on top of the latter
// two.
package search

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/tags"
)

// Mode names a retrieval strategy.
type Mode string

const (
	ModeFilter   Mode = "filter"
	ModeFullText Mode = "fulltext"
	ModeVector   Mode = "vector"
	ModeHybrid   Mode = "hybrid"
)

// DefaultHybridWeight favors the semantic side of a hybrid merge.
const DefaultHybridWeight = 0.6

// Options apply to every mode: an optional tag-equality pre-filter
// (evaluated before ranking), an optional creation-time range, and a
// result limit.
type Options struct {
	Tags    map[string]any
	TagMode tags.MatchMode
	Since   time.Time
	Until   time.Time
	Limit   int
}

func (o Options) tagFilter() *store.TagFilter {
	if len(o.Tags) == 0 {
		return nil
	}
	mode := o.TagMode
	if mode == "" {
		mode = tags.MatchAll
	}
	return &store.TagFilter{Tags: o.Tags, Mode: mode}
}

func (o Options) timeRange() store.TimeRange {
	return store.TimeRange{Since: o.Since, Until: o.Until}
}

// FilterParams are the exact/range predicates of the structured mode.
type FilterParams struct {
	SubjectContains string
	PartyContact    string
	Sort            store.SortKey
}

// FullTextParams drive tokenized relevance ranking.
type FullTextParams struct {
	Text    string
	MinRank float64
}

// VectorParams carry a pre-computed query embedding. This subsystem
// never computes embeddings inline; callers obtain one from the batch
// embedding collaborator or an external model.
type VectorParams struct {
	Embedding []float32
	MinScore  float32
}

// HybridParams compose the full-text and vector strategies. A nil
// Vector degrades the hybrid to keyword-only.
type HybridParams struct {
	FullText FullTextParams
	Vector   *VectorParams

	// Weight is the semantic share of the combined score:
	// combined = Weight*semantic + (1-Weight)*keyword.
	// Nil takes DefaultHybridWeight.
	Weight *float64
}

// Query is the tagged union dispatched by Mode; exactly the variant
// matching Mode must be set. Constructors below keep that invariant.
type Query struct {
	Mode     Mode
	Filter   *FilterParams
	FullText *FullTextParams
	Vector   *VectorParams
	Hybrid   *HybridParams
	Options  Options
}

// NewFilterQuery builds a structured-filter query.
func NewFilterQuery(p FilterParams, opts Options) Query {
	return Query{Mode: ModeFilter, Filter: &p, Options: opts}
}

// NewFullTextQuery builds a full-text relevance query.
func NewFullTextQuery(p FullTextParams, opts Options) Query {
	return Query{Mode: ModeFullText, FullText: &p, Options: opts}
}

// NewVectorQuery builds a vector similarity query.
func NewVectorQuery(p VectorParams, opts Options) Query {
	return Query{Mode: ModeVector, Vector: &p, Options: opts}
}

// NewHybridQuery builds a hybrid query composing full-text and vector.
func NewHybridQuery(p HybridParams, opts Options) Query {
	return Query{Mode: ModeHybrid, Hybrid: &p, Options: opts}
}

// Validate checks that the variant matching Mode is present.
func (q Query) Validate() error {
	switch q.Mode {
	case ModeFilter:
		if q.Filter == nil {
			return fmt.Errorf("%w: filter mode needs filter params", store.ErrInvalidParams)
		}
	case ModeFullText:
		if q.FullText == nil || q.FullText.Text == "" {
			return fmt.Errorf("%w: fulltext mode needs query text", store.ErrInvalidParams)
		}
	case ModeVector:
		if q.Vector == nil || len(q.Vector.Embedding) == 0 {
			return fmt.Errorf("%w: vector mode needs a query embedding", store.ErrInvalidParams)
		}
	case ModeHybrid:
		if q.Hybrid == nil || q.Hybrid.FullText.Text == "" {
			return fmt.Errorf("%w: hybrid mode needs query text", store.ErrInvalidParams)
		}
		if w := q.Hybrid.Weight; w != nil && (*w < 0 || *w > 1) {
			return fmt.Errorf("%w: hybrid weight must be in [0,1]", store.ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown search mode %q", store.ErrInvalidParams, q.Mode)
	}
	return nil
}

// Result is one ranked hit. Which score fields are set depends on the
// mode: Rank for full-text, Score for vector, Combined plus the two
// normalized components for hybrid. Filter results carry no scores.
type Result struct {
	UUID     string         `json:"uuid"`
	Location store.Location `json:"location"`

	// Rank is the raw full-text relevance (higher is better).
	Rank float64 `json:"rank,omitempty"`

	// Score is the raw vector similarity.
	Score float32 `json:"score,omitempty"`

	// Combined is the weighted hybrid score; Keyword and Semantic are
	// the normalized [0,1] components that produced it.
	Combined float64 `json:"combined,omitempty"`
	Keyword  float64 `json:"keyword_score,omitempty"`
	Semantic float64 `json:"semantic_score,omitempty"`
}
