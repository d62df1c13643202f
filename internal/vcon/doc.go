// Package vcon defines the vCon conversation record data model and its
// structural validator.
//
// A Vcon is the root entity for one recorded interaction (call, chat,
// email thread). It owns four ordered sub-collections - parties, dialog,
// analysis, attachments - whose entries are addressed by zero-based
// position. Cross-references between collections (a dialog entry naming
// party positions, an analysis entry naming dialog positions) are plain
// indexes, so a record is self-validating without loading anything else.
//
// The JSON field names follow the vCon interchange format: required keys
// are "vcon", "uuid", "created_at" and a non-empty "parties" array; the
// analysis schema field is "schema", "vendor" is mandatory on analysis
// entries, and "body" is always a string (JSON-encoded when the logical
// content is structured).
package vcon
