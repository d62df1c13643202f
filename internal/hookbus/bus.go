package hookbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vcond/internal/search"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// Bus holds registered plugins and invokes them in registration order.
// Registration happens at startup; the plugin list is immutable after
// that, so dispatch needs no locking.
//
// Hooks run synchronously inside the request with no per-plugin
// timeout: a hook that blocks stalls its operation, bounded only by the
// request context. Registered plugins are trusted code.
type Bus struct {
	plugins []Plugin
	logger  *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Register appends plugins. Order matters: a later plugin sees the
// transforms of every earlier one.
func (b *Bus) Register(plugins ...Plugin) {
	for _, p := range plugins {
		if p == nil {
			continue
		}
		b.plugins = append(b.plugins, p)
		b.logger.Info("plugin registered", zap.String("plugin", p.Name()))
	}
}

// Plugins returns the registered plugins in order.
func (b *Bus) Plugins() []Plugin {
	out := make([]Plugin, len(b.plugins))
	copy(out, b.plugins)
	return out
}

// reassertUUID pins record identity across a transform. A plugin may
// rewrite any field except the UUID; an attempted change is logged and
// reverted.
func (b *Bus) reassertUUID(hook Hook, plugin string, out *vcon.Vcon, uuid string) {
	if out.UUID != uuid {
		b.logger.Warn("plugin attempted record identity change",
			zap.String("hook", string(hook)),
			zap.String("plugin", plugin),
			zap.String("uuid", uuid),
			zap.String("attempted", out.UUID),
		)
		out.UUID = uuid
	}
}

// RunBeforeCreate threads the record through every BeforeCreatePlugin.
func (b *Bus) RunBeforeCreate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error) {
	cur := rec
	for _, p := range b.plugins {
		h, ok := p.(BeforeCreatePlugin)
		if !ok {
			continue
		}
		out, err := h.BeforeCreate(ctx, rc, cur)
		if err != nil {
			return nil, &HookError{Hook: BeforeCreate, Plugin: p.Name(), Err: err}
		}
		if out == nil {
			continue
		}
		b.reassertUUID(BeforeCreate, p.Name(), out, cur.UUID)
		cur = out
	}
	return cur, nil
}

// RunAfterCreate notifies every AfterCreatePlugin of a committed create.
func (b *Bus) RunAfterCreate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) error {
	for _, p := range b.plugins {
		h, ok := p.(AfterCreatePlugin)
		if !ok {
			continue
		}
		if err := h.AfterCreate(ctx, rc, rec); err != nil {
			return &HookError{Hook: AfterCreate, Plugin: p.Name(), Err: err}
		}
	}
	return nil
}

// RunBeforeRead gives every BeforeReadPlugin a chance to veto the read.
func (b *Bus) RunBeforeRead(ctx context.Context, rc *RequestContext, id string) error {
	for _, p := range b.plugins {
		h, ok := p.(BeforeReadPlugin)
		if !ok {
			continue
		}
		if err := h.BeforeRead(ctx, rc, id); err != nil {
			return &HookError{Hook: BeforeRead, Plugin: p.Name(), Err: err}
		}
	}
	return nil
}

// RunAfterRead threads the fetched record through every AfterReadPlugin.
func (b *Bus) RunAfterRead(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error) {
	cur := rec
	for _, p := range b.plugins {
		h, ok := p.(AfterReadPlugin)
		if !ok {
			continue
		}
		out, err := h.AfterRead(ctx, rc, cur)
		if err != nil {
			return nil, &HookError{Hook: AfterRead, Plugin: p.Name(), Err: err}
		}
		if out == nil {
			continue
		}
		b.reassertUUID(AfterRead, p.Name(), out, cur.UUID)
		cur = out
	}
	return cur, nil
}

// RunBeforeUpdate threads the mutated record through every
// BeforeUpdatePlugin.
func (b *Bus) RunBeforeUpdate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) (*vcon.Vcon, error) {
	cur := rec
	for _, p := range b.plugins {
		h, ok := p.(BeforeUpdatePlugin)
		if !ok {
			continue
		}
		out, err := h.BeforeUpdate(ctx, rc, cur)
		if err != nil {
			return nil, &HookError{Hook: BeforeUpdate, Plugin: p.Name(), Err: err}
		}
		if out == nil {
			continue
		}
		b.reassertUUID(BeforeUpdate, p.Name(), out, cur.UUID)
		cur = out
	}
	return cur, nil
}

// RunAfterUpdate notifies every AfterUpdatePlugin of a committed update.
func (b *Bus) RunAfterUpdate(ctx context.Context, rc *RequestContext, rec *vcon.Vcon) error {
	for _, p := range b.plugins {
		h, ok := p.(AfterUpdatePlugin)
		if !ok {
			continue
		}
		if err := h.AfterUpdate(ctx, rc, rec); err != nil {
			return &HookError{Hook: AfterUpdate, Plugin: p.Name(), Err: err}
		}
	}
	return nil
}

// RunBeforeDelete gives every BeforeDeletePlugin a chance to veto the
// delete.
func (b *Bus) RunBeforeDelete(ctx context.Context, rc *RequestContext, id string) error {
	for _, p := range b.plugins {
		h, ok := p.(BeforeDeletePlugin)
		if !ok {
			continue
		}
		if err := h.BeforeDelete(ctx, rc, id); err != nil {
			return &HookError{Hook: BeforeDelete, Plugin: p.Name(), Err: err}
		}
	}
	return nil
}

// RunAfterDelete notifies every AfterDeletePlugin of a committed delete.
func (b *Bus) RunAfterDelete(ctx context.Context, rc *RequestContext, id string) error {
	for _, p := range b.plugins {
		h, ok := p.(AfterDeletePlugin)
		if !ok {
			continue
		}
		if err := h.AfterDelete(ctx, rc, id); err != nil {
			return &HookError{Hook: AfterDelete, Plugin: p.Name(), Err: err}
		}
	}
	return nil
}

// RunBeforeSearch threads the query through every BeforeSearchPlugin.
func (b *Bus) RunBeforeSearch(ctx context.Context, rc *RequestContext, q *search.Query) (*search.Query, error) {
	cur := q
	for _, p := range b.plugins {
		h, ok := p.(BeforeSearchPlugin)
		if !ok {
			continue
		}
		out, err := h.BeforeSearch(ctx, rc, cur)
		if err != nil {
			return nil, &HookError{Hook: BeforeSearch, Plugin: p.Name(), Err: err}
		}
		if out != nil {
			cur = out
		}
	}
	return cur, nil
}

// RunAfterSearch threads the result list through every
// AfterSearchPlugin.
func (b *Bus) RunAfterSearch(ctx context.Context, rc *RequestContext, results []search.Result) ([]search.Result, error) {
	cur := results
	for _, p := range b.plugins {
		h, ok := p.(AfterSearchPlugin)
		if !ok {
			continue
		}
		out, err := h.AfterSearch(ctx, rc, cur)
		if err != nil {
			return nil, &HookError{Hook: AfterSearch, Plugin: p.Name(), Err: err}
		}
		if out != nil {
			cur = out
		}
	}
	return cur, nil
}
