package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// Memory is an in-memory Backend guarded by a RWMutex. Writes are
// last-writer-wins per record, matching the guarantee the orchestrator
// expects from any backend.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*vcon.Vcon
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*vcon.Vcon)}
}

func (m *Memory) Save(ctx context.Context, rec *vcon.Vcon) error {
	if rec == nil || rec.UUID == "" {
		return fmt.Errorf("%w: record must carry a uuid", ErrInvalidParams)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UUID] = rec.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*vcon.Vcon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, rec *vcon.Vcon) error {
	if rec == nil || rec.UUID == "" {
		return fmt.Errorf("%w: record must carry a uuid", ErrInvalidParams)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.UUID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.UUID)
	}
	m.records[rec.UUID] = rec.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) Filter(ctx context.Context, p FilterParams) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Match
	for _, rec := range m.records {
		if !matchesTagFilter(rec, p.Tags) {
			continue
		}
		created := parseCreated(rec)
		if !p.Range.Contains(created) {
			continue
		}
		loc, ok := filterLocation(rec, p)
		if !ok {
			continue
		}
		out = append(out, Match{UUID: rec.UUID, Location: loc, CreatedAt: created})
	}

	sortMatches(out, p.Sort, func(id string) string { return m.records[id].Subject })
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (m *Memory) FullText(ctx context.Context, p FullTextParams) ([]Match, error) {
	queryTokens := tokenize(p.Query)
	if len(queryTokens) == 0 {
		return nil, fmt.Errorf("%w: full-text query has no searchable terms", ErrInvalidParams)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Match
	for _, rec := range m.records {
		if !matchesTagFilter(rec, p.Tags) {
			continue
		}
		created := parseCreated(rec)
		if !p.Range.Contains(created) {
			continue
		}
		for _, unit := range textUnits(rec) {
			rank := termOverlap(queryTokens, unit.text)
			if rank <= 0 || rank < p.MinRank {
				continue
			}
			out = append(out, Match{UUID: rec.UUID, Location: unit.loc, Rank: rank, CreatedAt: created})
		}
	}

	// Best-first; ties break on UUID then location for stable output.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		if out[i].UUID != out[j].UUID {
			return out[i].UUID < out[j].UUID
		}
		return lessLocation(out[i].Location, out[j].Location)
	})
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// textUnit is one searchable piece of a record.
type textUnit struct {
	loc  Location
	text string
}

// textUnits enumerates the content full-text search covers: subject,
// inline dialog bodies, analysis bodies, and party identity fields.
func textUnits(rec *vcon.Vcon) []textUnit {
	var units []textUnit
	if rec.Subject != "" {
		units = append(units, textUnit{Location{Kind: LocationSubject}, rec.Subject})
	}
	for i, d := range rec.Dialog {
		if d.Body != "" {
			units = append(units, textUnit{Location{Kind: LocationDialog, Index: i}, d.Body})
		}
	}
	for i, a := range rec.Analysis {
		if a.Body != "" {
			units = append(units, textUnit{Location{Kind: LocationAnalysis, Index: i}, a.Body})
		}
	}
	for i, pt := range rec.Parties {
		joined := strings.TrimSpace(strings.Join([]string{pt.Name, pt.Tel, pt.Mailto, pt.SIP}, " "))
		if joined != "" {
			units = append(units, textUnit{Location{Kind: LocationParty, Index: i}, joined})
		}
	}
	return units
}

func matchesTagFilter(rec *vcon.Vcon, tf *TagFilter) bool {
	if tf == nil {
		return true
	}
	decoded, _ := tags.Decode(rec.TagsAttachment())
	return tags.Matches(decoded, tf.Tags, tf.Mode)
}

func parseCreated(rec *vcon.Vcon) time.Time {
	ts, err := time.Parse(time.RFC3339, rec.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func filterLocation(rec *vcon.Vcon, p FilterParams) (Location, bool) {
	if p.SubjectContains != "" {
		if !strings.Contains(strings.ToLower(rec.Subject), strings.ToLower(p.SubjectContains)) {
			return Location{}, false
		}
	}
	if p.PartyContact != "" {
		needle := strings.ToLower(p.PartyContact)
		for i, pt := range rec.Parties {
			haystack := strings.ToLower(strings.Join([]string{pt.Name, pt.Tel, pt.Mailto, pt.SIP}, " "))
			if strings.Contains(haystack, needle) {
				return Location{Kind: LocationParty, Index: i}, true
			}
		}
		return Location{}, false
	}
	return Location{Kind: LocationSubject}, true
}

func sortMatches(out []Match, key SortKey, subjectOf func(string) string) {
	sort.Slice(out, func(i, j int) bool {
		switch key {
		case SortOldestFirst:
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
		case SortSubject:
			si, sj := subjectOf(out[i].UUID), subjectOf(out[j].UUID)
			if si != sj {
				return si < sj
			}
		default: // newest first
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
		}
		return out[i].UUID < out[j].UUID
	})
}

func lessLocation(a, b Location) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Index < b.Index
}
