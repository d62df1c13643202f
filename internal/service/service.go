// Package service is the lifecycle orchestrator: the one layer that
// sequences validation, hook dispatch, storage, and the search engine
// for conversation records. Callers above it (the tool surface, the
// CLI) never touch a backend directly, and collaborator errors never
// leave this package untranslated.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/hookbus"
	"github.com/fyrsmithlabs/vcond/internal/search"
	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
	"github.com/fyrsmithlabs/vcond/internal/vectorstore"
)

// Service orchestrates the record lifecycle.
type Service struct {
	backend   store.Backend
	vectors   vectorstore.Store
	engine    *search.Engine
	bus       *hookbus.Bus
	validator *vcon.Validator
	logger    *zap.Logger
}

// New wires the orchestrator. vectors may be nil when no vector store
// is configured; the delete cascade then skips embeddings. A nil bus
// gets an empty one.
func New(backend store.Backend, vectors vectorstore.Store, engine *search.Engine, bus *hookbus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = hookbus.New(logger)
	}
	return &Service{
		backend:   backend,
		vectors:   vectors,
		engine:    engine,
		bus:       bus,
		validator: vcon.NewValidator(),
		logger:    logger,
	}
}

// fail translates a collaborator error, logs the full diagnostics under
// the correlation ID, and returns the caller-safe Error.
func (s *Service) fail(op, corr string, err error) *Error {
	kind, msg := classify(err)
	s.logger.Error("operation failed",
		zap.String("operation", op),
		zap.String("correlation_id", corr),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return &Error{Kind: kind, Op: op, CorrelationID: corr, Message: msg, err: err}
}

func (s *Service) validationFail(op, corr string, res vcon.Result) *Error {
	s.logger.Warn("record failed validation",
		zap.String("operation", op),
		zap.String("correlation_id", corr),
		zap.Int("errors", len(res.Errors)),
	)
	return &Error{
		Kind:          KindValidationFailed,
		Op:            op,
		CorrelationID: corr,
		Message:       "record failed validation",
		Issues:        res.Errors,
	}
}

func (s *Service) malformedTag(op, corr string, err error) *Error {
	s.logger.Warn("malformed tag",
		zap.String("operation", op),
		zap.String("correlation_id", corr),
		zap.Error(err),
	)
	return &Error{Kind: KindMalformedTag, Op: op, CorrelationID: corr, Message: err.Error(), err: err}
}

// afterHook runs a post-commit hook pass. The operation already
// committed, so a failing after-hook is logged, not surfaced.
func (s *Service) afterHook(op, corr string, run func() error) {
	if err := run(); err != nil {
		s.logger.Warn("after-hook failed post-commit",
			zap.String("operation", op),
			zap.String("correlation_id", corr),
			zap.Error(err),
		)
	}
}

func requestContext(rc *hookbus.RequestContext) *hookbus.RequestContext {
	if rc == nil {
		rc = &hookbus.RequestContext{}
	}
	if rc.Timestamp.IsZero() {
		rc.Timestamp = time.Now().UTC()
	}
	return rc
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Create assigns identity and timestamps, runs the create hook
// pipeline, validates, and persists a new record. The caller's struct
// is never mutated.
func (s *Service) Create(ctx context.Context, rc *hookbus.RequestContext, rec *vcon.Vcon) (_ *vcon.Vcon, err error) {
	const op = "create"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if rec == nil {
		rec = &vcon.Vcon{}
	} else {
		rec = rec.Clone()
	}
	if rec.Vcon == "" {
		rec.Vcon = vcon.Version
	}
	if rec.UUID == "" {
		rec.UUID = uuid.NewString()
	}
	now := nowRFC3339()
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	out, hookErr := s.bus.RunBeforeCreate(ctx, rc, rec)
	if hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	rec = out

	if res := s.validator.Validate(rec, vcon.Options{CheckReferences: true}); !res.Valid {
		return nil, s.validationFail(op, corr, res)
	}
	if saveErr := s.backend.Save(ctx, rec); saveErr != nil {
		return nil, s.fail(op, corr, saveErr)
	}
	s.afterHook(op, corr, func() error { return s.bus.RunAfterCreate(ctx, rc, rec) })

	s.logger.Info("record created",
		zap.String("uuid", rec.UUID),
		zap.String("correlation_id", corr),
	)
	return rec.Clone(), nil
}

// Get fetches a record. Before-hooks may veto the read; after-hooks may
// reshape the returned copy (the stored record is untouched).
func (s *Service) Get(ctx context.Context, rc *hookbus.RequestContext, id string) (_ *vcon.Vcon, err error) {
	const op = "read"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if hookErr := s.bus.RunBeforeRead(ctx, rc, id); hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	rec, getErr := s.backend.Get(ctx, id)
	if getErr != nil {
		return nil, s.fail(op, corr, getErr)
	}
	out, hookErr := s.bus.RunAfterRead(ctx, rc, rec)
	if hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	return out, nil
}

// Update applies sub-collection ops to an existing record, re-runs the
// update hook pipeline and validation, and persists the result as one
// unit. Records are never replaced wholesale.
func (s *Service) Update(ctx context.Context, rc *hookbus.RequestContext, id string, ops []vcon.SubOp) (_ *vcon.Vcon, err error) {
	const op = "update"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if len(ops) == 0 {
		return nil, s.fail(op, corr, fmt.Errorf("%w: update requires at least one op", vcon.ErrBadOp))
	}
	rec, getErr := s.backend.Get(ctx, id)
	if getErr != nil {
		return nil, s.fail(op, corr, getErr)
	}
	for _, subOp := range ops {
		if applyErr := subOp.Apply(rec); applyErr != nil {
			return nil, s.fail(op, corr, applyErr)
		}
	}
	return s.persist(ctx, rc, op, corr, rec)
}

// persist is the shared tail of every mutation: update hooks,
// re-validation with reference checks, and the atomic backend write.
func (s *Service) persist(ctx context.Context, rc *hookbus.RequestContext, op, corr string, rec *vcon.Vcon) (*vcon.Vcon, error) {
	rec.UpdatedAt = nowRFC3339()

	out, hookErr := s.bus.RunBeforeUpdate(ctx, rc, rec)
	if hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	rec = out

	if res := s.validator.Validate(rec, vcon.Options{CheckReferences: true}); !res.Valid {
		return nil, s.validationFail(op, corr, res)
	}
	if updErr := s.backend.Update(ctx, rec); updErr != nil {
		return nil, s.fail(op, corr, updErr)
	}
	s.afterHook(op, corr, func() error { return s.bus.RunAfterUpdate(ctx, rc, rec) })

	s.logger.Info("record updated",
		zap.String("uuid", rec.UUID),
		zap.String("operation", op),
		zap.String("correlation_id", corr),
	)
	return rec.Clone(), nil
}

// Delete removes a record and cascades to its embeddings. The storage
// backend is authoritative: once it commits the delete, a failing
// embedding cleanup is logged and left to the next index run, not
// surfaced as a failed delete.
func (s *Service) Delete(ctx context.Context, rc *hookbus.RequestContext, id string) (err error) {
	const op = "delete"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if hookErr := s.bus.RunBeforeDelete(ctx, rc, id); hookErr != nil {
		return s.fail(op, corr, hookErr)
	}
	if delErr := s.backend.Delete(ctx, id); delErr != nil {
		return s.fail(op, corr, delErr)
	}
	if s.vectors != nil {
		if vecErr := s.vectors.DeleteRecord(ctx, id); vecErr != nil {
			s.logger.Warn("embedding cleanup failed",
				zap.String("uuid", id),
				zap.String("correlation_id", corr),
				zap.Error(vecErr),
			)
		}
	}
	s.afterHook(op, corr, func() error { return s.bus.RunAfterDelete(ctx, rc, id) })

	s.logger.Info("record deleted",
		zap.String("uuid", id),
		zap.String("correlation_id", corr),
	)
	return nil
}

// Search runs one query through the search hook pipeline and the
// engine.
func (s *Service) Search(ctx context.Context, rc *hookbus.RequestContext, q search.Query) (_ []search.Result, err error) {
	const op = "search"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	rewritten, hookErr := s.bus.RunBeforeSearch(ctx, rc, &q)
	if hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	results, searchErr := s.engine.Search(ctx, *rewritten)
	if searchErr != nil {
		return nil, s.fail(op, corr, searchErr)
	}
	results, hookErr = s.bus.RunAfterSearch(ctx, rc, results)
	if hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	searchResultCount.WithLabelValues(string(rewritten.Mode)).Observe(float64(len(results)))
	return results, nil
}

// SetTags merges tags into the record's reserved attachment,
// last-write-wins per key, and persists through the update pipeline.
// It returns the full tag set after the merge.
func (s *Service) SetTags(ctx context.Context, rc *hookbus.RequestContext, id string, set map[string]any) (_ map[string]any, err error) {
	const op = "set_tags"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if len(set) == 0 {
		return nil, s.fail(op, corr, fmt.Errorf("%w: set_tags requires at least one tag", store.ErrInvalidParams))
	}
	rec, getErr := s.backend.Get(ctx, id)
	if getErr != nil {
		return nil, s.fail(op, corr, getErr)
	}

	current, warns := tags.Decode(rec.TagsAttachment())
	s.logTagWarnings(corr, id, warns)
	for k, v := range set {
		current[k] = v
	}
	att, encErr := tags.Encode(current)
	if encErr != nil {
		return nil, s.malformedTag(op, corr, encErr)
	}
	rec.SetTagsAttachment(att)

	if _, persistErr := s.persist(ctx, rc, op, corr, rec); persistErr != nil {
		return nil, persistErr
	}
	return current, nil
}

// GetTags decodes the record's tag set. Malformed entries are logged
// and skipped; a record with a damaged tag attachment still reads.
func (s *Service) GetTags(ctx context.Context, rc *hookbus.RequestContext, id string) (_ map[string]any, err error) {
	const op = "get_tags"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if hookErr := s.bus.RunBeforeRead(ctx, rc, id); hookErr != nil {
		return nil, s.fail(op, corr, hookErr)
	}
	rec, getErr := s.backend.Get(ctx, id)
	if getErr != nil {
		return nil, s.fail(op, corr, getErr)
	}
	decoded, warns := tags.Decode(rec.TagsAttachment())
	s.logTagWarnings(corr, id, warns)
	return decoded, nil
}

// DeleteTag removes one key from the record's tag set. Removing a key
// that is not present succeeds without touching the record.
func (s *Service) DeleteTag(ctx context.Context, rc *hookbus.RequestContext, id, key string) (err error) {
	const op = "delete_tag"
	corr := uuid.NewString()
	defer func(start time.Time) { observe(op, start, err) }(time.Now())
	rc = requestContext(rc)

	if key == "" {
		return s.fail(op, corr, fmt.Errorf("%w: tag key is required", store.ErrInvalidParams))
	}
	rec, getErr := s.backend.Get(ctx, id)
	if getErr != nil {
		return s.fail(op, corr, getErr)
	}
	current, warns := tags.Decode(rec.TagsAttachment())
	s.logTagWarnings(corr, id, warns)
	if _, ok := current[key]; !ok {
		return nil
	}
	delete(current, key)
	att, encErr := tags.Encode(current)
	if encErr != nil {
		return s.malformedTag(op, corr, encErr)
	}
	rec.SetTagsAttachment(att)

	_, err = s.persist(ctx, rc, op, corr, rec)
	return err
}

// SearchByTags is the tag-only entry point: a structured filter scoped
// entirely by the tag predicate.
func (s *Service) SearchByTags(ctx context.Context, rc *hookbus.RequestContext, set map[string]any, mode tags.MatchMode, limit int) ([]search.Result, error) {
	if mode != "" && !mode.Valid() {
		corr := uuid.NewString()
		return nil, s.fail("search_by_tags", corr, fmt.Errorf("%w: unknown tag match mode %q", store.ErrInvalidParams, mode))
	}
	q := search.NewFilterQuery(search.FilterParams{}, search.Options{
		Tags:    set,
		TagMode: mode,
		Limit:   limit,
	})
	return s.Search(ctx, rc, q)
}

func (s *Service) logTagWarnings(corr, id string, warns []tags.Warning) {
	for _, w := range warns {
		s.logger.Warn("skipping malformed tag entry",
			zap.String("uuid", id),
			zap.String("correlation_id", corr),
			zap.String("entry", w.Entry),
			zap.String("reason", w.Message),
		)
	}
}
