// Package config provides configuration loading for vcond.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vcond/internal/logging"
	"github.com/fyrsmithlabs/vcond/internal/search"
)

// StoreConfig selects the storage backend.
type StoreConfig struct {
	// Driver is "sqlite" or "memory". Default: sqlite.
	Driver string `koanf:"driver"`

	// Path is the SQLite database file. Default: vcond.db.
	Path string `koanf:"path"`
}

// VectorConfig configures the embedded vector store.
type VectorConfig struct {
	// Enabled switches vector similarity (and with it, the semantic half
	// of hybrid search) on. Default: true.
	Enabled *bool `koanf:"enabled"`

	// Path is the persistence directory. Empty keeps embeddings in
	// memory only.
	Path string `koanf:"path"`

	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// VectorEnabled reports the effective switch, defaulting to on.
func (v VectorConfig) VectorEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// EmbeddingsConfig configures the local embedding model.
type EmbeddingsConfig struct {
	// Model is the embedding model name. Default: BAAI/bge-small-en-v1.5.
	Model string `koanf:"model"`

	// CacheDir caches downloaded ONNX model files.
	CacheDir string `koanf:"cache_dir"`

	// MaxLength is the maximum input sequence length.
	MaxLength int `koanf:"max_length"`
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	// HybridWeight is the semantic share of a hybrid score.
	HybridWeight float64 `koanf:"hybrid_weight"`

	// SubqueryTimeout bounds each hybrid sub-query.
	SubqueryTimeout time.Duration `koanf:"subquery_timeout"`

	// DefaultLimit applies when a query requests no limit.
	DefaultLimit int `koanf:"default_limit"`
}

// MetricsConfig exposes Prometheus metrics over HTTP. The tool
// transport itself stays on stdio; this is a sidecar listener.
type MetricsConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464". Empty disables
	// the endpoint.
	Addr string `koanf:"addr"`
}

// Config is the root configuration.
type Config struct {
	Log        logging.Config   `koanf:"log"`
	Store      StoreConfig      `koanf:"store"`
	Vector     VectorConfig     `koanf:"vector"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Search     SearchConfig     `koanf:"search"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ApplyDefaults fills unset fields across all sections.
func (c *Config) ApplyDefaults() {
	c.Log.ApplyDefaults()

	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "vcond.db"
	}

	if c.Vector.Collection == "" {
		c.Vector.Collection = "vcond_embeddings"
	}
	if c.Vector.VectorSize == 0 {
		c.Vector.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}

	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}

	if c.Search.HybridWeight == 0 {
		c.Search.HybridWeight = search.DefaultHybridWeight
	}
	if c.Search.SubqueryTimeout == 0 {
		c.Search.SubqueryTimeout = 5 * time.Second
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 10
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store: unknown driver %q (must be sqlite or memory)", c.Store.Driver)
	}
	if c.Vector.VectorSize <= 0 {
		return fmt.Errorf("vector: vector_size must be positive")
	}
	if c.Search.HybridWeight < 0 || c.Search.HybridWeight > 1 {
		return fmt.Errorf("search: hybrid_weight must be in [0,1]")
	}
	if c.Search.SubqueryTimeout <= 0 {
		return fmt.Errorf("search: subquery_timeout must be positive")
	}
	return nil
}
