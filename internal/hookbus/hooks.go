// Package hookbus is the extension surface of the record lifecycle.
// Plugins register once and receive callbacks at ten points: before and
// after each of create, read, update, delete, and search. Before-hooks
// on mutations may transform the record or veto the operation;
// after-hooks observe (and, for read and search, may reshape what the
// caller sees).
//
// Dispatch is static: a plugin implements only the hook interfaces it
// cares about, and the bus type-asserts at call time. No reflection, no
// registration of individual functions.
package hookbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vcond/internal/search"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// ErrVetoed signals that a plugin rejected the operation. Plugins wrap
// it with their reason; the orchestrator translates it into a veto
// failure rather than an internal error.
var ErrVetoed = errors.New("operation vetoed")

// Hook names one of the ten callback points.
type Hook string

const (
	BeforeCreate Hook = "before_create"
	AfterCreate  Hook = "after_create"
	BeforeRead   Hook = "before_read"
	AfterRead    Hook = "after_read"
	BeforeUpdate Hook = "before_update"
	AfterUpdate  Hook = "after_update"
	BeforeDelete Hook = "before_delete"
	AfterDelete  Hook = "after_delete"
	BeforeSearch Hook = "before_search"
	AfterSearch  Hook = "after_search"
)

// RequestContext carries per-operation metadata plugins may consult:
// when the operation started, who asked for it, and why.
type RequestContext struct {
	Timestamp time.Time
	Caller    string
	Purpose   string
}

// Plugin is the base contract. A plugin additionally implements any of
// the per-hook interfaces below.
type Plugin interface {
	Name() string
}

// BeforeCreatePlugin runs before a new record is validated and
// persisted. Returning a record replaces the one in flight; returning
// nil keeps it. An error vetoes the create.
type BeforeCreatePlugin interface {
	Plugin
	BeforeCreate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error)
}

// AfterCreatePlugin observes a committed create.
type AfterCreatePlugin interface {
	Plugin
	AfterCreate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) error
}

// BeforeReadPlugin may veto a read by UUID.
type BeforeReadPlugin interface {
	Plugin
	BeforeRead(ctx context.Context, rc *RequestContext, id string) error
}

// AfterReadPlugin may reshape the record handed back to the caller,
// e.g. redaction. The stored record is untouched.
type AfterReadPlugin interface {
	Plugin
	AfterRead(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error)
}

// BeforeUpdatePlugin runs on the fully mutated record before
// re-validation and persistence. Same transform-or-veto contract as
// BeforeCreatePlugin.
type BeforeUpdatePlugin interface {
	Plugin
	BeforeUpdate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error)
}

// AfterUpdatePlugin observes a committed update.
type AfterUpdatePlugin interface {
	Plugin
	AfterUpdate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) error
}

// BeforeDeletePlugin may veto a delete.
type BeforeDeletePlugin interface {
	Plugin
	BeforeDelete(ctx context.Context, rc *RequestContext, id string) error
}

// AfterDeletePlugin observes a committed delete.
type AfterDeletePlugin interface {
	Plugin
	AfterDelete(ctx context.Context, rc *RequestContext, id string) error
}

// BeforeSearchPlugin may rewrite the query (narrowing scope, injecting
// tag filters) or veto it.
type BeforeSearchPlugin interface {
	Plugin
	BeforeSearch(ctx context.Context, rc *RequestContext, q *search.Query) (*search.Query, error)
}

// AfterSearchPlugin may reshape the result list before it reaches the
// caller.
type AfterSearchPlugin interface {
	Plugin
	AfterSearch(ctx context.Context, rc *RequestContext, results []search.Result) ([]search.Result, error)
}

// HookError reports which plugin failed at which hook. Unwrap exposes
// the plugin's error so errors.Is(err, ErrVetoed) keeps working through
// the bus.
type HookError struct {
	Hook   Hook
	Plugin string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s: plugin %s: %v", e.Hook, e.Plugin, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
