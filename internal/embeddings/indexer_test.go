package embeddings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/embeddings"
	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

const testDim = 4

// hashEmbedder produces deterministic unit vectors from text, enough to
// exercise the pipeline without a model.
type hashEmbedder struct{}

func (hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embed(t)
	}
	return out, nil
}

func (hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

func embed(text string) []float32 {
	v := make([]float32, testDim)
	h := 0
	for _, c := range text {
		h = (h*31 + int(c)) % 997
	}
	var sum float32
	for i := range v {
		v[i] = float32((h+i*7)%100) + 1
		sum += v[i] * v[i]
	}
	norm := float32(1)
	if sum > 0 {
		norm = 1 / sqrt32(sum)
	}
	for i := range v {
		v[i] *= norm
	}
	return v
}

func sqrt32(x float32) float32 {
	z := x / 2
	for i := 0; i < 12; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func seedRecord(t *testing.T, b store.Backend, id, subject string) {
	t.Helper()
	rec := &vcon.Vcon{
		Vcon:      vcon.Version,
		UUID:      id,
		CreatedAt: "2026-01-10T09:00:00Z",
		Subject:   subject,
		Parties:   []vcon.Party{{Name: "Alice"}},
		Dialog: []vcon.Dialog{
			{Type: vcon.DialogText, Body: "inline text turn"},
			{Type: vcon.DialogRecording, URL: "https://media.example.com/a.wav", ContentHash: "sha256-x"},
		},
		Analysis: []vcon.Analysis{{Type: "summary", Vendor: "acme", Body: "summary text"}},
	}
	require.NoError(t, b.Save(context.Background(), rec))
}

func newVectorStore(t *testing.T) vectorstore.Store {
	t.Helper()
	vs, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{VectorSize: testDim}, zap.NewNop())
	require.NoError(t, err)
	return vs
}

func TestIndexer_IndexRecord(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	vs := newVectorStore(t)
	seedRecord(t, backend, "11111111-1111-4111-8111-111111111111", "billing dispute")

	ix := embeddings.NewIndexer(backend, vs, hashEmbedder{}, zap.NewNop())
	n, err := ix.IndexRecord(ctx, "11111111-1111-4111-8111-111111111111")
	require.NoError(t, err)
	// Subject, one inline text dialog, one analysis body. The external
	// recording has no inline text and is skipped.
	assert.Equal(t, 3, n)

	query, err := hashEmbedder{}.EmbedQuery(ctx, "billing dispute")
	require.NoError(t, err)
	results, err := vs.Search(ctx, query, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "11111111-1111-4111-8111-111111111111", results[0].RecordUUID)
	assert.Equal(t, vectorstore.KindSubject, results[0].Kind)
}

func TestIndexer_IndexRecord_NotFound(t *testing.T) {
	ix := embeddings.NewIndexer(store.NewMemory(), newVectorStore(t), hashEmbedder{}, zap.NewNop())
	_, err := ix.IndexRecord(context.Background(), "99999999-9999-4999-8999-999999999999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIndexer_IndexAll(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	vs := newVectorStore(t)
	seedRecord(t, backend, "11111111-1111-4111-8111-111111111111", "billing dispute")
	seedRecord(t, backend, "22222222-2222-4222-8222-222222222222", "renewal call")

	ix := embeddings.NewIndexer(backend, vs, hashEmbedder{}, zap.NewNop())
	res, err := ix.IndexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 6, res.Documents)
	assert.Equal(t, 0, res.Errors)
}
