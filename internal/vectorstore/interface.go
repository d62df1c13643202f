// Package vectorstore provides vector similarity storage for record
// embeddings.
//
// Embeddings are computed out-of-band by the embeddings package and
// stored keyed by (record uuid, content kind, content index). Search
// here consumes an already-computed query embedding; nothing in this
// package ever calls an embedding model inside a request path.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrDimensionMismatch indicates an embedding whose length does not
	// match the collection's vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ContentKind says which part of a record an embedding was computed from.
type ContentKind string

const (
	KindSubject  ContentKind = "subject"
	KindDialog   ContentKind = "dialog"
	KindAnalysis ContentKind = "analysis"
)

// Document is one embedded text unit of a record.
type Document struct {
	// RecordUUID is the owning conversation record.
	RecordUUID string

	// Kind and Index locate the source text inside the record.
	Kind  ContentKind
	Index int

	// Content is the embedded text, kept for inspection and reindexing.
	Content string

	// Embedding is the pre-computed vector. Must match the store's
	// configured dimension.
	Embedding []float32
}

// ID returns the stable document identifier derived from the key
// (record uuid, kind, index).
func (d Document) ID() string {
	return fmt.Sprintf("%s:%s:%d", d.RecordUUID, d.Kind, d.Index)
}

// SearchResult is one similarity hit, best-first by Score.
type SearchResult struct {
	RecordUUID string
	Kind       ContentKind
	Index      int
	Score      float32
	Content    string
}

// Embedder generates vector embeddings from text. Implemented by the
// embeddings package; declared here so the store and its batch feeder
// share one contract.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query. Some models
	// optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector similarity contract the search engine consumes.
type Store interface {
	// Upsert stores documents with their pre-computed embeddings,
	// replacing any existing document with the same key.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns up to k results by cosine similarity, best-first.
	// When allow is non-nil only documents whose record UUID is in the
	// set are considered; the set comes from the tag pre-filter and is
	// applied before trimming to k.
	Search(ctx context.Context, embedding []float32, k int, allow map[string]bool) ([]SearchResult, error)

	// DeleteRecord removes every embedding derived from one record.
	// Part of the record delete cascade.
	DeleteRecord(ctx context.Context, recordUUID string) error
}
