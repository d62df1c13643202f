// Package embeddings provides embedding generation and the out-of-band
// batch indexer that keeps the vector store in sync with stored records.
//
// Embedding generation is deliberately not part of any request path: the
// search subsystem only ever consumes vectors this package has already
// computed and stored.
package embeddings

import (
	"errors"

	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")
)

// Provider is an embedding generator with a known output dimension.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
