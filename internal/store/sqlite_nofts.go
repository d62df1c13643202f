//go:build !sqlite_fts5

package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// SQLite is a stub for builds without the sqlite_fts5 tag.
type SQLite struct{}

// NewSQLite reports that the driver was built without FTS5 support.
func NewSQLite(_ SQLiteConfig, _ *zap.Logger) (*SQLite, error) {
	return nil, ErrFTS5Required
}

func (s *SQLite) Save(context.Context, *vcon.Vcon) error   { return ErrFTS5Required }
func (s *SQLite) Update(context.Context, *vcon.Vcon) error { return ErrFTS5Required }

func (s *SQLite) Get(context.Context, string) (*vcon.Vcon, error) {
	return nil, ErrFTS5Required
}

func (s *SQLite) Delete(context.Context, string) error { return ErrFTS5Required }

func (s *SQLite) Filter(context.Context, FilterParams) ([]Match, error) {
	return nil, ErrFTS5Required
}

func (s *SQLite) FullText(context.Context, FullTextParams) ([]Match, error) {
	return nil, ErrFTS5Required
}

func (s *SQLite) Close() error { return nil }
