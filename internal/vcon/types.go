package vcon

import (
	"encoding/json"
	"fmt"
)

// Version is the vCon format version written on newly created records.
const Version = "0.3.0"

// TagsAttachmentType is the reserved attachment type that carries the
// record's tag set as a JSON-encoded array of "key:value" strings.
const TagsAttachmentType = "tags"

// DialogType enumerates the allowed dialog entry types.
type DialogType string

const (
	DialogRecording  DialogType = "recording"
	DialogText       DialogType = "text"
	DialogTransfer   DialogType = "transfer"
	DialogIncomplete DialogType = "incomplete"
)

// ValidDialogType reports whether t is one of the fixed dialog types.
func ValidDialogType(t DialogType) bool {
	switch t {
	case DialogRecording, DialogText, DialogTransfer, DialogIncomplete:
		return true
	}
	return false
}

// Encoding enumerates the allowed content encodings. Absence of an
// encoding is legal and is never defaulted.
type Encoding string

const (
	EncodingBase64URL Encoding = "base64url"
	EncodingJSON      Encoding = "json"
	EncodingNone      Encoding = "none"
)

// ValidEncoding reports whether e is one of the fixed encodings.
func ValidEncoding(e Encoding) bool {
	switch e {
	case EncodingBase64URL, EncodingJSON, EncodingNone:
		return true
	}
	return false
}

// IndexList holds zero-based positions into a sibling collection.
//
// The wire format allows either a bare integer or an array of integers;
// a single-element list marshals back to the bare form, matching how
// existing vCon producers serialize the analysis "dialog" field.
type IndexList []int

// UnmarshalJSON accepts a bare integer or an array of integers.
func (l *IndexList) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*l = IndexList{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("index list must be an integer or array of integers: %w", err)
	}
	*l = IndexList(many)
	return nil
}

// MarshalJSON writes a bare integer for single-element lists.
func (l IndexList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]int(l))
}

// Party describes one participant. All fields are optional; a party is
// meaningful purely by its position in the parties collection.
type Party struct {
	Tel          string         `json:"tel,omitempty"`
	SIP          string         `json:"sip,omitempty"`
	Stir         string         `json:"stir,omitempty"`
	Mailto       string         `json:"mailto,omitempty"`
	Name         string         `json:"name,omitempty"`
	DID          string         `json:"did,omitempty"`
	UUID         string         `json:"uuid,omitempty"`
	Validation   string         `json:"validation,omitempty"`
	GMLPos       string         `json:"gmlpos,omitempty"`
	CivicAddress string         `json:"civicaddress,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// Dialog is one conversational turn. Content is either inline
// (Body + Encoding) or external (URL + ContentHash), never both.
type Dialog struct {
	Type        DialogType `json:"type"`
	Start       string     `json:"start,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	Parties     IndexList  `json:"parties,omitempty"`
	Originator  *int       `json:"originator,omitempty"`
	Mediatype   string     `json:"mediatype,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	Body        string     `json:"body,omitempty"`
	Encoding    Encoding   `json:"encoding,omitempty"`
	URL         string     `json:"url,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"`
	Disposition string     `json:"disposition,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Application string     `json:"application,omitempty"`
	MessageID   string     `json:"message_id,omitempty"`
}

// Analysis is a derived result such as a transcript or summary. Type and
// Vendor are mandatory. Body is always a string; non-JSON formats (CSV,
// plain text) are carried verbatim, structured results are JSON-encoded.
type Analysis struct {
	Type        string    `json:"type"`
	Dialog      IndexList `json:"dialog,omitempty"`
	Mediatype   string    `json:"mediatype,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Vendor      string    `json:"vendor"`
	Product     string    `json:"product,omitempty"`
	Schema      string    `json:"schema,omitempty"`
	Body        string    `json:"body,omitempty"`
	Encoding    Encoding  `json:"encoding,omitempty"`
	URL         string    `json:"url,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
}

// Attachment is an arbitrary named payload attached to the record.
// Content follows the same inline-XOR-external rule as Dialog.
type Attachment struct {
	Type        string   `json:"type"`
	Start       string   `json:"start,omitempty"`
	Party       *int     `json:"party,omitempty"`
	Dialog      *int     `json:"dialog,omitempty"`
	Mediatype   string   `json:"mediatype,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	Body        string   `json:"body,omitempty"`
	Encoding    Encoding `json:"encoding,omitempty"`
	URL         string   `json:"url,omitempty"`
	ContentHash string   `json:"content_hash,omitempty"`
}

// Vcon is the root conversation record.
type Vcon struct {
	Vcon        string       `json:"vcon"`
	UUID        string       `json:"uuid"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at,omitempty"`
	Subject     string       `json:"subject,omitempty"`
	Extensions  []string     `json:"extensions,omitempty"`
	MustSupport []string     `json:"must_support,omitempty"`
	Parties     []Party      `json:"parties"`
	Dialog      []Dialog     `json:"dialog,omitempty"`
	Analysis    []Analysis   `json:"analysis,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Clone returns a deep copy of the record. Hooks receive clones so a
// vetoing plugin cannot leave a half-transformed record behind.
func (v *Vcon) Clone() *Vcon {
	if v == nil {
		return nil
	}
	out := *v
	out.Extensions = append([]string(nil), v.Extensions...)
	out.MustSupport = append([]string(nil), v.MustSupport...)
	out.Parties = make([]Party, len(v.Parties))
	for i, p := range v.Parties {
		out.Parties[i] = p
		if p.Meta != nil {
			m := make(map[string]any, len(p.Meta))
			for k, val := range p.Meta {
				m[k] = val
			}
			out.Parties[i].Meta = m
		}
	}
	out.Dialog = make([]Dialog, len(v.Dialog))
	for i, d := range v.Dialog {
		out.Dialog[i] = d
		out.Dialog[i].Parties = append(IndexList(nil), d.Parties...)
		if d.Originator != nil {
			o := *d.Originator
			out.Dialog[i].Originator = &o
		}
	}
	out.Analysis = make([]Analysis, len(v.Analysis))
	for i, a := range v.Analysis {
		out.Analysis[i] = a
		out.Analysis[i].Dialog = append(IndexList(nil), a.Dialog...)
	}
	out.Attachments = make([]Attachment, len(v.Attachments))
	for i, at := range v.Attachments {
		out.Attachments[i] = at
		if at.Party != nil {
			p := *at.Party
			out.Attachments[i].Party = &p
		}
		if at.Dialog != nil {
			d := *at.Dialog
			out.Attachments[i].Dialog = &d
		}
	}
	return &out
}

// TagsAttachment returns the reserved tags attachment, or nil when the
// record carries none.
func (v *Vcon) TagsAttachment() *Attachment {
	for i := range v.Attachments {
		if v.Attachments[i].Type == TagsAttachmentType {
			return &v.Attachments[i]
		}
	}
	return nil
}

// SetTagsAttachment replaces the reserved tags attachment, appending it
// when the record has none yet.
func (v *Vcon) SetTagsAttachment(att Attachment) {
	for i := range v.Attachments {
		if v.Attachments[i].Type == TagsAttachmentType {
			v.Attachments[i] = att
			return
		}
	}
	v.Attachments = append(v.Attachments, att)
}
