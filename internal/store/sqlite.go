//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

//go:embed schema.sql
var schema string

// SQLite is the embedded relational Backend. Each record write runs in
// one transaction covering the document row, the party rows, the
// materialized tag rows, and the full-text rows, so single-record
// atomicity holds across everything derived from the record. The
// full-text index is FTS5, which mattn/go-sqlite3 only compiles in
// under the sqlite_fts5 build tag.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLite opens (creating if needed) the database at cfg.Path and
// initializes the schema.
func NewSQLite(cfg SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("sqlite backend ready", zap.String("path", cfg.Path))
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Save(ctx context.Context, rec *vcon.Vcon) error {
	return s.write(ctx, rec, false)
}

func (s *SQLite) Update(ctx context.Context, rec *vcon.Vcon) error {
	return s.write(ctx, rec, true)
}

func (s *SQLite) write(ctx context.Context, rec *vcon.Vcon, mustExist bool) error {
	if rec == nil || rec.UUID == "" {
		return fmt.Errorf("%w: record must carry a uuid", ErrInvalidParams)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if mustExist {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM vcons WHERE uuid = ?", rec.UUID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, rec.UUID)
		}
		if err != nil {
			return fmt.Errorf("check record: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vcons (uuid, vcon_version, subject, created_at, updated_at, document)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			vcon_version = excluded.vcon_version,
			subject      = excluded.subject,
			created_at   = excluded.created_at,
			updated_at   = excluded.updated_at,
			document     = excluded.document`,
		rec.UUID, rec.Vcon, rec.Subject, utcTimestamp(rec.CreatedAt), utcTimestamp(rec.UpdatedAt), string(doc))
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	if err := s.rebuildDerived(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebuildDerived replaces the party, tag, and full-text rows for one
// record inside the caller's transaction.
func (s *SQLite) rebuildDerived(ctx context.Context, tx *sql.Tx, rec *vcon.Vcon) error {
	for _, stmt := range []string{
		"DELETE FROM parties WHERE vcon_uuid = ?",
		"DELETE FROM vcon_tags WHERE vcon_uuid = ?",
		"DELETE FROM vcons_fts WHERE vcon_uuid = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, rec.UUID); err != nil {
			return fmt.Errorf("clear derived rows: %w", err)
		}
	}

	for i, p := range rec.Parties {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO parties (vcon_uuid, party_index, name, tel, mailto, sip) VALUES (?, ?, ?, ?, ?, ?)",
			rec.UUID, i, p.Name, p.Tel, p.Mailto, p.SIP)
		if err != nil {
			return fmt.Errorf("insert party: %w", err)
		}
	}

	decoded, warns := tags.Decode(rec.TagsAttachment())
	for _, w := range warns {
		s.logger.Warn("skipping malformed tag entry", zap.String("uuid", rec.UUID), zap.String("entry", w.Entry))
	}
	for k, v := range decoded {
		val, err := tags.FormatValue(v)
		if err != nil {
			continue
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO vcon_tags (vcon_uuid, key, value) VALUES (?, ?, ?)",
			rec.UUID, k, val)
		if err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}

	for _, unit := range textUnits(rec) {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vcons_fts (vcon_uuid, kind, idx, content) VALUES (?, ?, ?, ?)",
			rec.UUID, string(unit.loc.Kind), unit.loc.Index, unit.text)
		if err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*vcon.Vcon, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM vcons WHERE uuid = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var rec vcon.Vcon
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM vcons WHERE uuid = ?", id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for _, stmt := range []string{
		"DELETE FROM parties WHERE vcon_uuid = ?",
		"DELETE FROM vcon_tags WHERE vcon_uuid = ?",
		"DELETE FROM vcons_fts WHERE vcon_uuid = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete derived rows: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Filter(ctx context.Context, p FilterParams) ([]Match, error) {
	var (
		conds []string
		args  []any
	)
	if p.SubjectContains != "" {
		conds = append(conds, "LOWER(v.subject) LIKE ?")
		args = append(args, "%"+strings.ToLower(p.SubjectContains)+"%")
	}
	if p.PartyContact != "" {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM parties pt WHERE pt.vcon_uuid = v.uuid AND
			LOWER(COALESCE(pt.name,'') || ' ' || COALESCE(pt.tel,'') || ' ' ||
			      COALESCE(pt.mailto,'') || ' ' || COALESCE(pt.sip,'')) LIKE ?)`)
		args = append(args, "%"+strings.ToLower(p.PartyContact)+"%")
	}
	if !p.Range.Since.IsZero() {
		conds = append(conds, "v.created_at >= ?")
		args = append(args, p.Range.Since.UTC().Format(time.RFC3339))
	}
	if !p.Range.Until.IsZero() {
		conds = append(conds, "v.created_at <= ?")
		args = append(args, p.Range.Until.UTC().Format(time.RFC3339))
	}

	allowed, err := s.tagCandidates(ctx, p.Tags)
	if err != nil {
		return nil, err
	}

	query := "SELECT v.uuid, v.created_at FROM vcons v"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	switch p.Sort {
	case SortOldestFirst:
		query += " ORDER BY v.created_at ASC, v.uuid ASC"
	case SortSubject:
		query += " ORDER BY v.subject ASC, v.uuid ASC"
	default:
		query += " ORDER BY v.created_at DESC, v.uuid ASC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var id, created string
		if err := rows.Scan(&id, &created); err != nil {
			return nil, fmt.Errorf("scan filter row: %w", err)
		}
		if allowed != nil && !allowed[id] {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, created)
		out = append(out, Match{UUID: id, Location: Location{Kind: LocationSubject}, CreatedAt: ts})
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *SQLite) FullText(ctx context.Context, p FullTextParams) ([]Match, error) {
	terms := tokenize(p.Query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: full-text query has no searchable terms", ErrInvalidParams)
	}

	// Tag pre-filter resolves to a UUID set before any ranking work.
	allowed, err := s.tagCandidates(ctx, p.Tags)
	if err != nil {
		return nil, err
	}

	// Quote each term so user input cannot smuggle FTS5 syntax.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	matchExpr := strings.Join(quoted, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.vcon_uuid, f.kind, f.idx, bm25(vcons_fts) AS score, v.created_at
		FROM vcons_fts f
		JOIN vcons v ON v.uuid = f.vcon_uuid
		WHERE vcons_fts MATCH ?
		ORDER BY score ASC, f.vcon_uuid ASC, f.kind ASC, f.idx ASC`,
		matchExpr)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			id, kind, created string
			idx               int
			score             float64
		)
		if err := rows.Scan(&id, &kind, &idx, &score, &created); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		if allowed != nil && !allowed[id] {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, created)
		if !p.Range.Contains(ts) {
			continue
		}
		// bm25() is smaller-is-better and negative for matches; flip it
		// so Rank is higher-is-better like every other primitive.
		rank := -score
		if rank < p.MinRank {
			continue
		}
		out = append(out, Match{
			UUID:      id,
			Location:  Location{Kind: LocationKind(kind), Index: idx},
			Rank:      rank,
			CreatedAt: ts,
		})
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, rows.Err()
}

// utcTimestamp normalizes an RFC 3339 timestamp to UTC so comparisons
// over the created_at column are chronological across offsets. The
// canonical record in the document column keeps its original form.
func utcTimestamp(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.RFC3339)
}

// tagCandidates resolves a tag pre-filter to the set of matching record
// UUIDs, or nil when no filter applies.
func (s *SQLite) tagCandidates(ctx context.Context, tf *TagFilter) (map[string]bool, error) {
	if tf == nil {
		return nil, nil
	}

	// Start from every record so untagged records still evaluate against
	// the filter (an empty "all" query, say, matches them).
	perRecord := map[string]map[string]any{}
	ids, err := s.db.QueryContext(ctx, "SELECT uuid FROM vcons")
	if err != nil {
		return nil, fmt.Errorf("tag candidates: %w", err)
	}
	defer ids.Close()
	for ids.Next() {
		var id string
		if err := ids.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan uuid: %w", err)
		}
		perRecord[id] = map[string]any{}
	}
	if err := ids.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT vcon_uuid, key, value FROM vcon_tags ORDER BY vcon_uuid")
	if err != nil {
		return nil, fmt.Errorf("tag candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, k, v string
		if err := rows.Scan(&id, &k, &v); err != nil {
			return nil, fmt.Errorf("scan tag row: %w", err)
		}
		if perRecord[id] == nil {
			perRecord[id] = map[string]any{}
		}
		perRecord[id][k] = tags.ParseValue(v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	for id, set := range perRecord {
		if tags.Matches(set, tf.Tags, tf.Mode) {
			allowed[id] = true
		}
	}
	return allowed, nil
}
