package service

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vcond/internal/hookbus"
	"github.com/fyrsmithlabs/vcond/internal/store"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// Kind classifies an operation failure. The orchestrator is the only
// layer that translates collaborator errors into these kinds; callers
// (tool surface, CLI) branch on Kind and never on backend internals.
type Kind string

const (
	// KindValidationFailed covers schema violations, bad sub-collection
	// ops, and malformed search parameters.
	KindValidationFailed Kind = "validation_failed"

	// KindNotFound means the record UUID did not resolve.
	KindNotFound Kind = "not_found"

	// KindBackendUnavailable covers storage and vector-store failures.
	// The message is generic on purpose; diagnostics go to the log under
	// the correlation ID.
	KindBackendUnavailable Kind = "backend_unavailable"

	// KindHookVetoed means a plugin rejected the operation.
	KindHookVetoed Kind = "hook_vetoed"

	// KindMalformedTag means a tag entry could not be parsed where
	// strict decoding was required.
	KindMalformedTag Kind = "malformed_tag"
)

// Error is the one error shape the orchestrator returns.
type Error struct {
	Kind          Kind
	Op            string
	CorrelationID string
	Message       string

	// Issues carries the full validation report when Kind is
	// KindValidationFailed for a schema failure.
	Issues []vcon.Issue

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s, correlation %s)", e.Op, e.Message, e.Kind, e.CorrelationID)
}

func (e *Error) Unwrap() error { return e.err }

// IsKind reports whether err is a service Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// classify maps a collaborator error to a failure kind and a message
// safe to hand to callers.
func classify(err error) (Kind, string) {
	var hookErr *hookbus.HookError
	switch {
	// Every error surfaced from a before hook is a veto, whether or not
	// the plugin wrapped the sentinel; after-hook failures are logged
	// and never returned.
	case errors.Is(err, hookbus.ErrVetoed), errors.As(err, &hookErr):
		return KindHookVetoed, vetoReason(err)
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound, "record not found"
	case errors.Is(err, store.ErrInvalidParams),
		errors.Is(err, vcon.ErrBadOp),
		errors.Is(err, vcon.ErrIndexOutOfRange):
		return KindValidationFailed, err.Error()
	default:
		// Anything else is infrastructure. Connection strings, file
		// paths, and driver details stay in the log.
		return KindBackendUnavailable, "backend unavailable"
	}
}

// vetoReason surfaces the plugin's stated reason without the hook-bus
// framing.
func vetoReason(err error) string {
	var hookErr *hookbus.HookError
	if errors.As(err, &hookErr) {
		return fmt.Sprintf("vetoed by plugin %s: %v", hookErr.Plugin, hookErr.Err)
	}
	return err.Error()
}
