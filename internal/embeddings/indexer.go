package embeddings

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

// Indexer is the batch collaborator that computes embeddings for stored
// records and writes them to the vector store keyed by
// (record uuid, content kind, index). It runs from the CLI or a
// scheduler, never inside a lifecycle request.
type Indexer struct {
	backend  store.Backend
	vectors  vectorstore.Store
	embedder vectorstore.Embedder
	logger   *zap.Logger
}

// NewIndexer creates a batch embedding indexer.
func NewIndexer(backend store.Backend, vectors vectorstore.Store, embedder vectorstore.Embedder, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{backend: backend, vectors: vectors, embedder: embedder, logger: logger}
}

// IndexResult summarizes one indexing run.
type IndexResult struct {
	Records   int `json:"records"`
	Documents int `json:"documents"`
	Errors    int `json:"errors"`
}

// IndexRecord embeds the text units of a single record and upserts them.
// Existing embeddings for the same (uuid, kind, index) keys are replaced.
func (ix *Indexer) IndexRecord(ctx context.Context, id string) (int, error) {
	rec, err := ix.backend.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("loading record %s: %w", id, err)
	}

	docs := embeddableUnits(rec)
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding record %s: %w", id, err)
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	if err := ix.vectors.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("storing embeddings for %s: %w", id, err)
	}
	return len(docs), nil
}

// IndexAll walks every stored record and indexes it. Per-record failures
// are counted and logged, not fatal; a half-indexed corpus still serves
// searches for what it has.
func (ix *Indexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	matches, err := ix.backend.Filter(ctx, store.FilterParams{Sort: store.SortOldestFirst})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	res := &IndexResult{}
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := ix.IndexRecord(ctx, m.UUID)
		if err != nil {
			res.Errors++
			ix.logger.Warn("indexing record failed", zap.String("uuid", m.UUID), zap.Error(err))
			continue
		}
		res.Records++
		res.Documents += n
	}

	ix.logger.Info("embedding index run complete",
		zap.Int("records", res.Records),
		zap.Int("documents", res.Documents),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

// embeddableUnits lists the record text the vector index covers: the
// subject, inline dialog bodies, and analysis bodies.
func embeddableUnits(rec *vcon.Vcon) []vectorstore.Document {
	var docs []vectorstore.Document
	if rec.Subject != "" {
		docs = append(docs, vectorstore.Document{
			RecordUUID: rec.UUID, Kind: vectorstore.KindSubject, Index: 0, Content: rec.Subject,
		})
	}
	for i, d := range rec.Dialog {
		if d.Body != "" && d.Type == vcon.DialogText {
			docs = append(docs, vectorstore.Document{
				RecordUUID: rec.UUID, Kind: vectorstore.KindDialog, Index: i, Content: d.Body,
			})
		}
	}
	for i, a := range rec.Analysis {
		if a.Body != "" {
			docs = append(docs, vectorstore.Document{
				RecordUUID: rec.UUID, Kind: vectorstore.KindAnalysis, Index: i, Content: a.Body,
			})
		}
	}
	return docs
}
