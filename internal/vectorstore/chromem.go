package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig holds configuration for the chromem-go embedded vector
// database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the
	// database in memory only (tests, ephemeral runs).
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection name. Default: "vcond_embeddings".
	Collection string

	// VectorSize is the expected embedding dimension. Must match the
	// embedding model's output. Default: 384 (bge-small-en-v1.5).
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "vcond_embeddings"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with optional gob persistence. No external service is
// needed; cosine similarity over a few thousand records is sub-millisecond.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var (
		db  *chromem.DB
		err error
	)
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, pErr := expandPath(config.Path)
		if pErr != nil {
			return nil, fmt.Errorf("expanding path: %w", pErr)
		}
		if mkErr := os.MkdirAll(path, 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, mkErr)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	// All documents arrive with pre-computed embeddings; an implicit
	// embedding call would mean a model ran inside a request path.
	noInlineEmbedding := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("document has no pre-computed embedding")
	}
	collection, err := db.GetOrCreateCollection(config.Collection, nil, noInlineEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem store ready",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
	)
	return &ChromemStore{db: db, collection: collection, config: config, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	converted := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != s.config.VectorSize {
			return fmt.Errorf("%w: document %s has %d dimensions, want %d",
				ErrDimensionMismatch, d.ID(), len(d.Embedding), s.config.VectorSize)
		}
		converted = append(converted, chromem.Document{
			ID:        d.ID(),
			Content:   d.Content,
			Embedding: d.Embedding,
			Metadata: map[string]string{
				"record_uuid": d.RecordUUID,
				"kind":        string(d.Kind),
				"index":       strconv.Itoa(d.Index),
			},
		})
	}
	if err := s.collection.AddDocuments(ctx, converted, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, embedding []float32, k int, allow map[string]bool) ([]SearchResult, error) {
	if len(embedding) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}
	count := s.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	// chromem's where-filter only does exact single-value matches, so an
	// allowlist ranks the whole collection and trims afterwards. The
	// pre-filter still holds: disallowed records never consume a slot in k.
	n := k
	if allow != nil || n > count {
		n = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]SearchResult, 0, k)
	for _, r := range results {
		uuid := r.Metadata["record_uuid"]
		if allow != nil && !allow[uuid] {
			continue
		}
		idx, _ := strconv.Atoi(r.Metadata["index"])
		out = append(out, SearchResult{
			RecordUUID: uuid,
			Kind:       ContentKind(r.Metadata["kind"]),
			Index:      idx,
			Score:      r.Similarity,
			Content:    r.Content,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (s *ChromemStore) DeleteRecord(ctx context.Context, recordUUID string) error {
	if recordUUID == "" {
		return fmt.Errorf("%w: record uuid is required", ErrInvalidConfig)
	}
	err := s.collection.Delete(ctx, map[string]string{"record_uuid": recordUUID}, nil)
	if err != nil {
		return fmt.Errorf("deleting embeddings for %s: %w", recordUUID, err)
	}
	return nil
}
