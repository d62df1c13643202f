// Package store defines the storage backend contract for conversation
// records and provides two implementations: an embedded SQLite backend
// with FTS5 full-text ranking, and an in-memory backend for tests and
// ephemeral runs.
//
// Backends own atomicity per single-record write. They expose exactly
// the primitives the orchestrator needs - persist, fetch, delete, and
// the structured-filter and full-text search primitives. Vector
// similarity lives in the vectorstore package; the search engine
// composes the two.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

var (
	// ErrNotFound is returned when a record UUID does not resolve.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidParams indicates malformed search parameters.
	ErrInvalidParams = errors.New("invalid search parameters")
)

// TagFilter is an optional tag-equality pre-filter applied before any
// ranking happens.
type TagFilter struct {
	Tags map[string]any
	Mode tags.MatchMode
}

// TimeRange bounds created_at. Zero values leave the bound open.
type TimeRange struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether ts falls inside the range.
func (r TimeRange) Contains(ts time.Time) bool {
	if !r.Since.IsZero() && ts.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && ts.After(r.Until) {
		return false
	}
	return true
}

// SortKey orders structured-filter results.
type SortKey string

const (
	SortNewestFirst SortKey = "newest_first"
	SortOldestFirst SortKey = "oldest_first"
	SortSubject     SortKey = "subject"
)

// FilterParams are the exact/range predicates of a structured search.
type FilterParams struct {
	// SubjectContains matches records whose subject contains the
	// substring, case-insensitively.
	SubjectContains string

	// PartyContact matches records where any party name or contact
	// handle (tel, mailto, sip) contains the substring.
	PartyContact string

	Range TimeRange
	Tags  *TagFilter

	// Sort defaults to newest-first.
	Sort  SortKey
	Limit int
}

// FullTextParams drive tokenized relevance ranking over subject, dialog
// bodies, analysis bodies, and party fields.
type FullTextParams struct {
	Query string

	// MinRank excludes hits below the threshold. Zero keeps everything.
	MinRank float64

	Range TimeRange
	Tags  *TagFilter
	Limit int
}

// LocationKind says which part of the record a match came from.
type LocationKind string

const (
	LocationSubject  LocationKind = "subject"
	LocationDialog   LocationKind = "dialog"
	LocationAnalysis LocationKind = "analysis"
	LocationParty    LocationKind = "party"
)

// Location is the content position that matched: the subject, or an
// index into the dialog, analysis, or parties collection.
type Location struct {
	Kind  LocationKind `json:"kind"`
	Index int          `json:"index,omitempty"`
}

// Match is one hit from a filter or full-text primitive. Rank is a
// relevance value where higher is better; structured filters leave it
// zero.
type Match struct {
	UUID      string
	Location  Location
	Rank      float64
	CreatedAt time.Time
}

// Backend is the storage collaborator contract. Implementations must
// provide atomicity for single-record writes; the orchestrator never
// retries on its own.
type Backend interface {
	// Save persists a record, inserting or replacing it as one unit.
	Save(ctx context.Context, rec *vcon.Vcon) error

	// Get fetches a record by UUID. Returns ErrNotFound when absent.
	Get(ctx context.Context, id string) (*vcon.Vcon, error)

	// Update replaces an existing record. Returns ErrNotFound when the
	// UUID does not resolve; sub-collection mutations commit through
	// this after the orchestrator applies the op and re-validates.
	Update(ctx context.Context, rec *vcon.Vcon) error

	// Delete removes the record and everything derived from it in this
	// backend (sub-collections, tag rows, full-text rows) as one unit.
	Delete(ctx context.Context, id string) error

	// Filter runs a structured search. Results are unranked, ordered by
	// the requested sort key.
	Filter(ctx context.Context, p FilterParams) ([]Match, error)

	// FullText runs tokenized relevance ranking, best-first.
	FullText(ctx context.Context, p FullTextParams) ([]Match, error)

	// Close releases backend resources.
	Close() error
}
