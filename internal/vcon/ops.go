package vcon

import (
	"errors"
	"fmt"
)

// Collection names the four ordered sub-collections of a record.
type Collection string

const (
	CollectionParties     Collection = "parties"
	CollectionDialog      Collection = "dialog"
	CollectionAnalysis    Collection = "analysis"
	CollectionAttachments Collection = "attachments"
)

// OpKind is a sub-collection mutation kind.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
)

var (
	// ErrIndexOutOfRange is returned when an op addresses a position that
	// does not exist in the target collection.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrBadOp is returned for structurally invalid ops (unknown
	// collection, missing entry payload, wrong payload type).
	ErrBadOp = errors.New("invalid sub-collection op")
)

// SubOp is one mutation against a named sub-collection. Records are
// never replaced wholesale: every update goes through an op so index
// references stay checkable.
//
// Exactly one of the entry pointers matching Collection must be set for
// add and update; remove needs only Collection and Index.
type SubOp struct {
	Collection Collection `json:"collection"`
	Kind       OpKind     `json:"kind"`
	Index      int        `json:"index,omitempty"`

	Party      *Party      `json:"party,omitempty"`
	Dialog     *Dialog     `json:"dialog,omitempty"`
	Analysis   *Analysis   `json:"analysis,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Apply mutates rec in place according to op. The record is not
// re-validated here; callers run the Validator on the result before
// persisting.
func (op SubOp) Apply(rec *Vcon) error {
	switch op.Collection {
	case CollectionParties:
		return applyOp(op, &rec.Parties, op.Party)
	case CollectionDialog:
		return applyOp(op, &rec.Dialog, op.Dialog)
	case CollectionAnalysis:
		return applyOp(op, &rec.Analysis, op.Analysis)
	case CollectionAttachments:
		return applyOp(op, &rec.Attachments, op.Attachment)
	default:
		return fmt.Errorf("%w: unknown collection %q", ErrBadOp, op.Collection)
	}
}

func applyOp[T any](op SubOp, coll *[]T, entry *T) error {
	switch op.Kind {
	case OpAdd:
		if entry == nil {
			return fmt.Errorf("%w: add on %s requires an entry", ErrBadOp, op.Collection)
		}
		*coll = append(*coll, *entry)
		return nil
	case OpUpdate:
		if entry == nil {
			return fmt.Errorf("%w: update on %s requires an entry", ErrBadOp, op.Collection)
		}
		if op.Index < 0 || op.Index >= len(*coll) {
			return fmt.Errorf("%w: %s[%d] (len %d)", ErrIndexOutOfRange, op.Collection, op.Index, len(*coll))
		}
		(*coll)[op.Index] = *entry
		return nil
	case OpRemove:
		if op.Index < 0 || op.Index >= len(*coll) {
			return fmt.Errorf("%w: %s[%d] (len %d)", ErrIndexOutOfRange, op.Collection, op.Index, len(*coll))
		}
		*coll = append((*coll)[:op.Index], (*coll)[op.Index+1:]...)
		return nil
	default:
		return fmt.Errorf("%w: unknown op kind %q", ErrBadOp, op.Kind)
	}
}
