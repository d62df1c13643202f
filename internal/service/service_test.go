package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/hookbus"
	"github.com/fyrsmithlabs/vcond/internal/search"
	"github.com/fyrsmithlabs/vcond/internal/service"
	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

const testDim = 4

type fixture struct {
	svc     *service.Service
	backend *store.Memory
	vectors vectorstore.Store
	bus     *hookbus.Bus
}

func newFixture(t *testing.T, plugins ...hookbus.Plugin) *fixture {
	t.Helper()
	backend := store.NewMemory()
	vs, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{VectorSize: testDim}, zap.NewNop())
	require.NoError(t, err)
	bus := hookbus.New(zap.NewNop())
	bus.Register(plugins...)
	engine := search.NewEngine(backend, vs, search.Config{}, zap.NewNop())
	return &fixture{
		svc:     service.New(backend, vs, engine, bus, zap.NewNop()),
		backend: backend,
		vectors: vs,
		bus:     bus,
	}
}

func draft(subject string) *vcon.Vcon {
	return &vcon.Vcon{
		Subject: subject,
		Parties: []vcon.Party{{Name: "Alice", Tel: "+15551230001"}},
	}
}

// subjectSuffixer appends its note to the subject on create, so hook
// ordering shows in the stored record.
type subjectSuffixer struct {
	name string
	note string
}

func (p *subjectSuffixer) Name() string { return p.name }

func (p *subjectSuffixer) BeforeCreate(_ context.Context, _ *hookbus.RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error) {
	out := rec.Clone()
	out.Subject += " " + p.note
	return out, nil
}

// deleteBlocker vetoes every delete.
type deleteBlocker struct{}

func (deleteBlocker) Name() string { return "delete-blocker" }

func (deleteBlocker) BeforeDelete(_ context.Context, _ *hookbus.RequestContext, id string) error {
	return fmt.Errorf("record %s is retained: %w", id, hookbus.ErrVetoed)
}

// quotaRejector rejects creation with a plain error of its own instead
// of wrapping the veto sentinel.
type quotaRejector struct{}

func (quotaRejector) Name() string { return "quota-rejector" }

func (quotaRejector) BeforeCreate(_ context.Context, _ *hookbus.RequestContext, _ *vcon.Vcon) (*vcon.Vcon, error) {
	return nil, errors.New("tenant quota exceeded")
}

// subjectRedactor blanks the subject on the way out of a read.
type subjectRedactor struct{}

func (subjectRedactor) Name() string { return "subject-redactor" }

func (subjectRedactor) AfterRead(_ context.Context, _ *hookbus.RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error) {
	out := rec.Clone()
	out.Subject = "[redacted]"
	return out, nil
}

func TestService_Create_AssignsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, nil, draft("billing call"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.UUID)
	assert.Equal(t, vcon.Version, created.Vcon)

	_, tsErr := time.Parse(time.RFC3339, created.CreatedAt)
	assert.NoError(t, tsErr)
	_, tsErr = time.Parse(time.RFC3339, created.UpdatedAt)
	assert.NoError(t, tsErr)

	stored, err := f.backend.Get(ctx, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, "billing call", stored.Subject)
}

func TestService_Create_DoesNotMutateCaller(t *testing.T) {
	f := newFixture(t)
	in := draft("billing call")

	created, err := f.svc.Create(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Empty(t, in.UUID)
	assert.NotEmpty(t, created.UUID)
}

func TestService_Create_ValidationFailure(t *testing.T) {
	f := newFixture(t)
	bad := draft("broken")
	bad.Dialog = []vcon.Dialog{{Type: "carrier-pigeon", Body: "x"}}

	_, err := f.svc.Create(context.Background(), nil, bad)
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))

	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	assert.NotEmpty(t, svcErr.Issues)
	assert.NotEmpty(t, svcErr.CorrelationID)

	// Nothing reached the backend.
	matches, listErr := f.backend.Filter(context.Background(), store.FilterParams{})
	require.NoError(t, listErr)
	assert.Empty(t, matches)
}

func TestService_Create_PluginErrorIsVeto(t *testing.T) {
	f := newFixture(t, quotaRejector{})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, nil, draft("over quota"))
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindHookVetoed))
	assert.False(t, errors.Is(err, hookbus.ErrVetoed))
	assert.Contains(t, err.Error(), "quota-rejector")

	// The rejection aborted the operation before the backend.
	matches, listErr := f.backend.Filter(ctx, store.FilterParams{})
	require.NoError(t, listErr)
	assert.Empty(t, matches)
}

func TestService_Update_AppliesOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("support call"))
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, nil, created.UUID, []vcon.SubOp{
		{Collection: vcon.CollectionDialog, Kind: vcon.OpAdd,
			Dialog: &vcon.Dialog{Type: vcon.DialogText, Body: "customer asked about the invoice"}},
		{Collection: vcon.CollectionAnalysis, Kind: vcon.OpAdd,
			Analysis: &vcon.Analysis{Type: "summary", Vendor: "acme", Body: "invoice question"}},
	})
	require.NoError(t, err)
	assert.Len(t, updated.Dialog, 1)
	assert.Len(t, updated.Analysis, 1)

	// The mutated record is immediately searchable.
	results, err := f.svc.Search(ctx, nil, search.NewFullTextQuery(
		search.FullTextParams{Text: "invoice"}, search.Options{}))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, created.UUID, results[0].UUID)
}

func TestService_Update_BadOpLeavesRecordIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("support call"))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, nil, created.UUID, []vcon.SubOp{
		{Collection: vcon.CollectionDialog, Kind: vcon.OpRemove, Index: 5},
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))

	stored, err := f.backend.Get(ctx, created.UUID)
	require.NoError(t, err)
	assert.Empty(t, stored.Dialog)
}

func TestService_Update_ReferenceIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("support call"))
	require.NoError(t, err)

	// The analysis points at dialog position 3, which does not exist.
	_, err = f.svc.Update(ctx, nil, created.UUID, []vcon.SubOp{
		{Collection: vcon.CollectionAnalysis, Kind: vcon.OpAdd,
			Analysis: &vcon.Analysis{Type: "summary", Vendor: "acme", Body: "x", Dialog: vcon.IndexList{3}}},
	})
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))
}

func TestService_Update_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Update(context.Background(), nil, "00000000-0000-4000-8000-000000000000", []vcon.SubOp{
		{Collection: vcon.CollectionParties, Kind: vcon.OpAdd, Party: &vcon.Party{Name: "Bob"}},
	})
	assert.True(t, service.IsKind(err, service.KindNotFound))
}

func TestService_Delete_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Delete(context.Background(), nil, "00000000-0000-4000-8000-000000000000")
	assert.True(t, service.IsKind(err, service.KindNotFound))
}

func TestService_Delete_CascadesToEmbeddings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("cascade target"))
	require.NoError(t, err)

	emb := []float32{1, 0, 0, 0}
	require.NoError(t, f.vectors.Upsert(ctx, []vectorstore.Document{
		{RecordUUID: created.UUID, Kind: vectorstore.KindSubject, Content: created.Subject, Embedding: emb},
	}))

	require.NoError(t, f.svc.Delete(ctx, nil, created.UUID))

	_, err = f.svc.Get(ctx, nil, created.UUID)
	assert.True(t, service.IsKind(err, service.KindNotFound))

	hits, err := f.vectors.Search(ctx, emb, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestService_Delete_VetoLeavesStoreIntact(t *testing.T) {
	f := newFixture(t, deleteBlocker{})
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("retained"))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, nil, created.UUID)
	require.Error(t, err)
	assert.True(t, service.IsKind(err, service.KindHookVetoed))

	stored, err := f.backend.Get(ctx, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, "retained", stored.Subject)
}

func TestService_HookTransformOrder(t *testing.T) {
	f := newFixture(t,
		&subjectSuffixer{name: "first", note: "one"},
		&subjectSuffixer{name: "second", note: "two"},
	)

	created, err := f.svc.Create(context.Background(), nil, draft("call"))
	require.NoError(t, err)
	assert.Equal(t, "call one two", created.Subject)

	stored, err := f.backend.Get(context.Background(), created.UUID)
	require.NoError(t, err)
	assert.Equal(t, "call one two", stored.Subject)
}

func TestService_Get_AfterReadRedaction(t *testing.T) {
	f := newFixture(t, subjectRedactor{})
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("sensitive subject"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, nil, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, "[redacted]", got.Subject)

	// The stored record keeps the original subject.
	stored, err := f.backend.Get(ctx, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, "sensitive subject", stored.Subject)
}

func TestService_Tags_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("tagged call"))
	require.NoError(t, err)

	set, err := f.svc.SetTags(ctx, nil, created.UUID, map[string]any{
		"dept": "sales", "priority": float64(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "sales", set["dept"])

	// Last write wins per key; untouched keys survive.
	set, err = f.svc.SetTags(ctx, nil, created.UUID, map[string]any{"dept": "support"})
	require.NoError(t, err)
	assert.Equal(t, "support", set["dept"])
	assert.Equal(t, float64(2), set["priority"])

	got, err := f.svc.GetTags(ctx, nil, created.UUID)
	require.NoError(t, err)
	assert.Equal(t, set, got)

	require.NoError(t, f.svc.DeleteTag(ctx, nil, created.UUID, "priority"))
	got, err = f.svc.GetTags(ctx, nil, created.UUID)
	require.NoError(t, err)
	assert.NotContains(t, got, "priority")

	// Deleting an absent key is a no-op, not an error.
	require.NoError(t, f.svc.DeleteTag(ctx, nil, created.UUID, "missing"))
}

func TestService_SetTags_RejectsBadKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, nil, draft("tagged call"))
	require.NoError(t, err)

	_, err = f.svc.SetTags(ctx, nil, created.UUID, map[string]any{"bad:key": "x"})
	assert.True(t, service.IsKind(err, service.KindMalformedTag))
}

func TestService_SearchByTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, nil, draft("sales call"))
	require.NoError(t, err)
	_, err = f.svc.SetTags(ctx, nil, a.UUID, map[string]any{"dept": "sales", "billable": true})
	require.NoError(t, err)

	b, err := f.svc.Create(ctx, nil, draft("support call"))
	require.NoError(t, err)
	_, err = f.svc.SetTags(ctx, nil, b.UUID, map[string]any{"dept": "sales"})
	require.NoError(t, err)

	results, err := f.svc.SearchByTags(ctx, nil, map[string]any{"dept": "sales"}, tags.MatchAll, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Exact match excludes the record carrying an extra tag.
	results, err = f.svc.SearchByTags(ctx, nil, map[string]any{"dept": "sales"}, tags.MatchExact, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, b.UUID, results[0].UUID)

	_, err = f.svc.SearchByTags(ctx, nil, map[string]any{"dept": "sales"}, "fuzzy", 0)
	assert.True(t, service.IsKind(err, service.KindValidationFailed))
}

func TestService_Search_InvalidQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Search(context.Background(), nil, search.Query{Mode: "fuzzy"})
	assert.True(t, service.IsKind(err, service.KindValidationFailed))
}
