package vcon

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Rule names reported on validation issues. Callers can branch on these
// without parsing messages.
const (
	RuleRequired      = "required"
	RuleTimestamp     = "timestamp"
	RuleUUID          = "uuid"
	RuleDialogType    = "dialog_type"
	RuleVendor        = "vendor_required"
	RuleEncoding      = "encoding"
	RuleContent       = "content"
	RuleReference     = "reference"
	RuleExtension     = "extension"
	RuleContentHash   = "content_hash"
	RulePartiesNonNil = "parties_nonempty"
)

// Issue is a single validation finding.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Field, i.Message, i.Rule)
}

// Result is an aggregated validation outcome. Validate never fails fast:
// callers get every violation for the attempt in one pass.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Options control optional validation passes.
type Options struct {
	// CheckReferences verifies that every index reference (dialog party
	// positions, analysis dialog positions, attachment party/dialog
	// pointers) resolves within its target collection.
	CheckReferences bool

	// Strict rejects extension identifiers in "extensions" that the
	// validator does not understand. Identifiers merely declared in the
	// advisory "must_support" list are tolerated either way.
	Strict bool
}

// Validator enforces the structural invariants of a record. It never
// returns a Go error; malformed input produces a Result with Errors.
type Validator struct {
	known map[string]bool
}

// NewValidator creates a validator. knownExtensions lists the extension
// identifiers this deployment understands; it only matters in strict mode.
func NewValidator(knownExtensions ...string) *Validator {
	known := make(map[string]bool, len(knownExtensions))
	for _, e := range knownExtensions {
		known[e] = true
	}
	return &Validator{known: known}
}

// Validate checks rec against the vCon structural rules.
func (val *Validator) Validate(rec *Vcon, opts Options) Result {
	var errs, warns []Issue
	addErr := func(field, rule, format string, args ...any) {
		errs = append(errs, Issue{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}
	addWarn := func(field, rule, format string, args ...any) {
		warns = append(warns, Issue{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	if rec == nil {
		addErr("", RuleRequired, "record is nil")
		return Result{Valid: false, Errors: errs}
	}

	if rec.Vcon == "" {
		addErr("vcon", RuleRequired, "format version is required")
	}
	if rec.UUID == "" {
		addErr("uuid", RuleRequired, "uuid is required")
	} else if _, err := uuid.Parse(rec.UUID); err != nil {
		addErr("uuid", RuleUUID, "uuid %q is not a valid UUID", rec.UUID)
	}

	checkTimestamp(rec.CreatedAt, true, "created_at", addErr)
	checkTimestamp(rec.UpdatedAt, false, "updated_at", addErr)

	if len(rec.Parties) == 0 {
		addErr("parties", RulePartiesNonNil, "at least one party is required")
	}

	for i, d := range rec.Dialog {
		field := fmt.Sprintf("dialog[%d]", i)
		if !ValidDialogType(d.Type) {
			addErr(field+".type", RuleDialogType,
				"type %q is not one of recording, text, transfer, incomplete", d.Type)
		}
		checkTimestamp(d.Start, false, field+".start", addErr)
		checkEncoding(d.Encoding, field+".encoding", addErr)
		checkContent(field, d.Body, d.URL, d.ContentHash, addErr, addWarn)
		if opts.CheckReferences {
			for _, p := range d.Parties {
				if p < 0 || p >= len(rec.Parties) {
					addErr(field+".parties", RuleReference,
						"party index %d out of range (record has %d parties)", p, len(rec.Parties))
				}
			}
			if d.Originator != nil && (*d.Originator < 0 || *d.Originator >= len(rec.Parties)) {
				addErr(field+".originator", RuleReference,
					"originator index %d out of range (record has %d parties)", *d.Originator, len(rec.Parties))
			}
		}
	}

	for i, a := range rec.Analysis {
		field := fmt.Sprintf("analysis[%d]", i)
		if a.Type == "" {
			addErr(field+".type", RuleRequired, "analysis type is required")
		}
		// Vendor is mandatory on every analysis entry. This is a hard
		// invariant of the format, not an optional nicety.
		if a.Vendor == "" {
			addErr(field+".vendor", RuleVendor, "analysis vendor is required")
		}
		checkEncoding(a.Encoding, field+".encoding", addErr)
		checkContent(field, a.Body, a.URL, a.ContentHash, addErr, addWarn)
		if opts.CheckReferences {
			for _, di := range a.Dialog {
				if di < 0 || di >= len(rec.Dialog) {
					addErr(field+".dialog", RuleReference,
						"dialog index %d out of range (record has %d dialog entries)", di, len(rec.Dialog))
				}
			}
		}
	}

	for i, at := range rec.Attachments {
		field := fmt.Sprintf("attachments[%d]", i)
		if at.Type == "" {
			addErr(field+".type", RuleRequired, "attachment type is required")
		}
		checkTimestamp(at.Start, false, field+".start", addErr)
		checkEncoding(at.Encoding, field+".encoding", addErr)
		checkContent(field, at.Body, at.URL, at.ContentHash, addErr, addWarn)
		if opts.CheckReferences {
			if at.Party != nil && (*at.Party < 0 || *at.Party >= len(rec.Parties)) {
				addErr(field+".party", RuleReference,
					"party index %d out of range (record has %d parties)", *at.Party, len(rec.Parties))
			}
			if at.Dialog != nil && (*at.Dialog < 0 || *at.Dialog >= len(rec.Dialog)) {
				addErr(field+".dialog", RuleReference,
					"dialog index %d out of range (record has %d dialog entries)", *at.Dialog, len(rec.Dialog))
			}
		}
	}

	if opts.Strict {
		for _, ext := range rec.Extensions {
			if !val.known[ext] {
				addErr("extensions", RuleExtension, "extension %q is not understood by this deployment", ext)
			}
		}
	}
	for _, ext := range rec.MustSupport {
		if !val.known[ext] {
			// Advisory only: declaring an unsupported extension is a
			// warning even in strict mode.
			addWarn("must_support", RuleExtension, "declared extension %q is not understood", ext)
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// checkTimestamp requires RFC 3339 with an explicit zone. Bare local
// times are rejected: RFC 3339 parsing fails without an offset or Z.
func checkTimestamp(value string, required bool, field string, addErr func(string, string, string, ...any)) {
	if value == "" {
		if required {
			addErr(field, RuleRequired, "timestamp is required")
		}
		return
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		addErr(field, RuleTimestamp, "timestamp %q must be RFC 3339 with timezone", value)
	}
}

func checkEncoding(e Encoding, field string, addErr func(string, string, string, ...any)) {
	if e == "" {
		return
	}
	if !ValidEncoding(e) {
		addErr(field, RuleEncoding, "encoding %q is not one of base64url, json, none", e)
	}
}

// checkContent enforces the inline-XOR-external content rule: a body and
// an external URL never appear together, and an external reference
// should carry a content hash.
func checkContent(field, body, url, hash string, addErr, addWarn func(string, string, string, ...any)) {
	if body != "" && url != "" {
		addErr(field, RuleContent, "content must be inline (body) or external (url), not both")
	}
	if url != "" && hash == "" {
		addWarn(field+".content_hash", RuleContentHash, "external content has no content_hash for integrity verification")
	}
}
