package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// backends returns each Backend implementation under a fresh state.
// The sqlite entry is absent when the binary was built without the
// sqlite_fts5 tag.
func backends(t *testing.T) map[string]store.Backend {
	t.Helper()

	out := map[string]store.Backend{"memory": store.NewMemory()}

	sqlitePath := filepath.Join(t.TempDir(), "vcond_test.db")
	sq, err := store.NewSQLite(store.SQLiteConfig{Path: sqlitePath}, zap.NewNop())
	if errors.Is(err, store.ErrFTS5Required) {
		t.Log("sqlite backend skipped: built without the sqlite_fts5 tag")
		return out
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	out["sqlite"] = sq
	return out
}

func testRecord(id, createdAt, subject string) *vcon.Vcon {
	return &vcon.Vcon{
		Vcon:      vcon.Version,
		UUID:      id,
		CreatedAt: createdAt,
		Subject:   subject,
		Parties: []vcon.Party{
			{Name: "Alice Martin", Tel: "+15551230001"},
			{Name: "Bob Chen", Mailto: "bob@example.com"},
		},
		Dialog: []vcon.Dialog{
			{Type: vcon.DialogText, Parties: vcon.IndexList{0, 1}, Body: "the invoice for the enterprise plan is overdue"},
		},
		Analysis: []vcon.Analysis{
			{Type: "summary", Vendor: "acme", Body: "customer disputes an invoice charge"},
		},
	}
}

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
	idC = "33333333-3333-4333-8333-333333333333"
)

func seed(t *testing.T, b store.Backend) {
	t.Helper()
	ctx := context.Background()

	a := testRecord(idA, "2026-01-10T09:00:00Z", "billing dispute")
	att, err := tags.Encode(map[string]any{"dept": "sales", "priority": "high"})
	require.NoError(t, err)
	a.SetTagsAttachment(att)
	require.NoError(t, b.Save(ctx, a))

	bb := testRecord(idB, "2026-02-20T09:00:00Z", "password reset help")
	bb.Dialog[0].Body = "cannot log in after the password change"
	bb.Analysis[0].Body = "user locked out of account"
	att, err = tags.Encode(map[string]any{"dept": "support"})
	require.NoError(t, err)
	bb.SetTagsAttachment(att)
	require.NoError(t, b.Save(ctx, bb))

	c := testRecord(idC, "2026-03-05T09:00:00Z", "renewal call")
	c.Dialog[0].Body = "discussing the renewal of the enterprise plan"
	c.Analysis[0].Body = "customer will renew next quarter"
	require.NoError(t, b.Save(ctx, c))
}

func TestBackend_SaveGetRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord(idA, "2026-01-10T09:00:00Z", "billing dispute")
			require.NoError(t, b.Save(ctx, rec))

			got, err := b.Get(ctx, idA)
			require.NoError(t, err)
			assert.Equal(t, rec.Subject, got.Subject)
			assert.Equal(t, rec.Parties, got.Parties)
			assert.Equal(t, rec.Dialog, got.Dialog)
			assert.Equal(t, rec.Analysis, got.Analysis)
		})
	}
}

func TestBackend_GetNotFound(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(context.Background(), idC)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestBackend_UpdateRequiresExisting(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord(idA, "2026-01-10T09:00:00Z", "original")
			assert.ErrorIs(t, b.Update(ctx, rec), store.ErrNotFound)

			require.NoError(t, b.Save(ctx, rec))
			rec.Subject = "changed"
			require.NoError(t, b.Update(ctx, rec))

			got, err := b.Get(ctx, idA)
			require.NoError(t, err)
			assert.Equal(t, "changed", got.Subject)
		})
	}
}

func TestBackend_DeleteCascades(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, b)

			require.NoError(t, b.Delete(ctx, idA))
			_, err := b.Get(ctx, idA)
			assert.ErrorIs(t, err, store.ErrNotFound)

			// Derived rows are gone too: the record no longer surfaces
			// through tag filtering or full-text search.
			matches, err := b.Filter(ctx, store.FilterParams{
				Tags: &store.TagFilter{Tags: map[string]any{"dept": "sales"}, Mode: tags.MatchAll},
			})
			require.NoError(t, err)
			assert.Empty(t, matches)

			hits, err := b.FullText(ctx, store.FullTextParams{Query: "invoice overdue"})
			require.NoError(t, err)
			for _, h := range hits {
				assert.NotEqual(t, idA, h.UUID)
			}

			assert.ErrorIs(t, b.Delete(ctx, idA), store.ErrNotFound)
		})
	}
}

func TestBackend_FilterSubjectAndSort(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, b)

			matches, err := b.Filter(ctx, store.FilterParams{})
			require.NoError(t, err)
			require.Len(t, matches, 3)
			// Default newest-first.
			assert.Equal(t, idC, matches[0].UUID)
			assert.Equal(t, idB, matches[1].UUID)
			assert.Equal(t, idA, matches[2].UUID)

			matches, err = b.Filter(ctx, store.FilterParams{SubjectContains: "BILLING"})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, idA, matches[0].UUID)

			matches, err = b.Filter(ctx, store.FilterParams{Sort: store.SortOldestFirst, Limit: 2})
			require.NoError(t, err)
			require.Len(t, matches, 2)
			assert.Equal(t, idA, matches[0].UUID)
		})
	}
}

func TestBackend_FilterPartyAndDateRange(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, b)

			matches, err := b.Filter(ctx, store.FilterParams{PartyContact: "bob@example.com"})
			require.NoError(t, err)
			assert.Len(t, matches, 3)

			matches, err = b.Filter(ctx, store.FilterParams{
				Range: store.TimeRange{Since: mustTime(t, "2026-02-01T00:00:00Z"), Until: mustTime(t, "2026-02-28T00:00:00Z")},
			})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, idB, matches[0].UUID)
		})
	}
}

func TestBackend_FilterOffsetTimestamps(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// 10:00+05:00 is 05:00Z, four hours before the Z record.
			early := testRecord(idA, "2026-01-01T10:00:00+05:00", "offset record")
			late := testRecord(idB, "2026-01-01T09:00:00Z", "utc record")
			require.NoError(t, b.Save(ctx, early))
			require.NoError(t, b.Save(ctx, late))

			matches, err := b.Filter(ctx, store.FilterParams{
				Range: store.TimeRange{Since: mustTime(t, "2026-01-01T07:00:00Z")},
			})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, idB, matches[0].UUID)

			// Newest-first ordering is chronological across offsets.
			matches, err = b.Filter(ctx, store.FilterParams{})
			require.NoError(t, err)
			require.Len(t, matches, 2)
			assert.Equal(t, idB, matches[0].UUID)
			assert.Equal(t, idA, matches[1].UUID)

			// The canonical record keeps its original timestamp form.
			got, err := b.Get(ctx, idA)
			require.NoError(t, err)
			assert.Equal(t, "2026-01-01T10:00:00+05:00", got.CreatedAt)
		})
	}
}

func TestBackend_FilterTagModes(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, b)

			// all: subset of record A's tags.
			matches, err := b.Filter(ctx, store.FilterParams{
				Tags: &store.TagFilter{Tags: map[string]any{"dept": "sales"}, Mode: tags.MatchAll},
			})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, idA, matches[0].UUID)

			// exact with a subset excludes A because priority is also set.
			matches, err = b.Filter(ctx, store.FilterParams{
				Tags: &store.TagFilter{Tags: map[string]any{"dept": "sales"}, Mode: tags.MatchExact},
			})
			require.NoError(t, err)
			assert.Empty(t, matches)

			// exact with the full set includes A.
			matches, err = b.Filter(ctx, store.FilterParams{
				Tags: &store.TagFilter{Tags: map[string]any{"dept": "sales", "priority": "high"}, Mode: tags.MatchExact},
			})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, idA, matches[0].UUID)

			// any across two departments.
			matches, err = b.Filter(ctx, store.FilterParams{
				Tags: &store.TagFilter{Tags: map[string]any{"dept": "support", "region": "emea"}, Mode: tags.MatchAny},
			})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, idB, matches[0].UUID)
		})
	}
}

func TestBackend_FullText(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, b)

			hits, err := b.FullText(ctx, store.FullTextParams{Query: "enterprise plan invoice"})
			require.NoError(t, err)
			require.NotEmpty(t, hits)

			// Best-first ordering.
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Rank, hits[i].Rank)
			}
			// Record A's dialog mentions all three terms and should lead.
			assert.Equal(t, idA, hits[0].UUID)
			assert.Equal(t, store.LocationDialog, hits[0].Location.Kind)

			// Tag pre-filter cuts the result set before ranking.
			hits, err = b.FullText(ctx, store.FullTextParams{
				Query: "enterprise plan",
				Tags:  &store.TagFilter{Tags: map[string]any{"dept": "sales"}, Mode: tags.MatchAll},
			})
			require.NoError(t, err)
			for _, h := range hits {
				assert.Equal(t, idA, h.UUID)
			}
		})
	}
}

func TestBackend_FullText_EmptyQuery(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.FullText(context.Background(), store.FullTextParams{Query: "  "})
			assert.ErrorIs(t, err, store.ErrInvalidParams)
		})
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return parsed
}
