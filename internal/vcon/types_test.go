package vcon_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

func TestIndexList_UnmarshalScalarAndArray(t *testing.T) {
	var a vcon.Analysis
	require.NoError(t, json.Unmarshal([]byte(`{"type":"transcript","vendor":"acme","dialog":0}`), &a))
	assert.Equal(t, vcon.IndexList{0}, a.Dialog)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"transcript","vendor":"acme","dialog":[1,2]}`), &a))
	assert.Equal(t, vcon.IndexList{1, 2}, a.Dialog)

	err := json.Unmarshal([]byte(`{"type":"transcript","vendor":"acme","dialog":"zero"}`), &a)
	assert.Error(t, err)
}

func TestIndexList_MarshalSingleAsScalar(t *testing.T) {
	out, err := json.Marshal(vcon.IndexList{2})
	require.NoError(t, err)
	assert.Equal(t, "2", string(out))

	out, err = json.Marshal(vcon.IndexList{0, 1})
	require.NoError(t, err)
	assert.Equal(t, "[0,1]", string(out))
}

func TestVcon_WireFormatRoundTrip(t *testing.T) {
	raw := `{
		"vcon": "0.3.0",
		"uuid": "0195f7a2-0000-7000-8000-0123456789ab",
		"created_at": "2026-01-15T10:30:00Z",
		"subject": "billing dispute",
		"parties": [{"name": "Alice", "tel": "+15551234567"}],
		"dialog": [{"type": "text", "parties": [0], "body": "hi", "encoding": "none"}],
		"analysis": [{"type": "summary", "vendor": "acme", "schema": "summary-v1", "dialog": 0, "body": "short"}],
		"attachments": [{"type": "tags", "body": "[\"dept:sales\"]", "encoding": "json"}]
	}`
	var rec vcon.Vcon
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	assert.Equal(t, "0.3.0", rec.Vcon)
	assert.Equal(t, "billing dispute", rec.Subject)
	require.Len(t, rec.Analysis, 1)
	assert.Equal(t, "acme", rec.Analysis[0].Vendor)
	assert.Equal(t, "summary-v1", rec.Analysis[0].Schema)

	out, err := json.Marshal(&rec)
	require.NoError(t, err)
	// The analysis schema field must stay "schema" on the wire, and body
	// stays a string.
	assert.Contains(t, string(out), `"schema":"summary-v1"`)
	assert.Contains(t, string(out), `"vendor":"acme"`)
	assert.NotContains(t, string(out), "schema_version")
}

func TestVcon_Clone(t *testing.T) {
	rec := validRecord()
	rec.Dialog[0].Originator = intPtr(1)

	cl := rec.Clone()
	cl.Subject = "changed"
	cl.Parties[0].Name = "Mallory"
	cl.Dialog[0].Parties[0] = 99
	*cl.Dialog[0].Originator = 0

	assert.Equal(t, "support call", rec.Subject)
	assert.Equal(t, "Alice", rec.Parties[0].Name)
	assert.Equal(t, 0, int(rec.Dialog[0].Parties[0]))
	assert.Equal(t, 1, *rec.Dialog[0].Originator)
}

func TestVcon_TagsAttachment(t *testing.T) {
	rec := validRecord()
	assert.Nil(t, rec.TagsAttachment())

	rec.SetTagsAttachment(vcon.Attachment{Type: vcon.TagsAttachmentType, Body: `["a:1"]`, Encoding: vcon.EncodingJSON})
	require.NotNil(t, rec.TagsAttachment())
	assert.Equal(t, `["a:1"]`, rec.TagsAttachment().Body)

	// Replacing keeps a single reserved attachment.
	rec.SetTagsAttachment(vcon.Attachment{Type: vcon.TagsAttachmentType, Body: `["b:2"]`, Encoding: vcon.EncodingJSON})
	count := 0
	for _, at := range rec.Attachments {
		if at.Type == vcon.TagsAttachmentType {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, `["b:2"]`, rec.TagsAttachment().Body)
}

func TestSubOp_Apply(t *testing.T) {
	rec := validRecord()

	op := vcon.SubOp{Collection: vcon.CollectionParties, Kind: vcon.OpAdd, Party: &vcon.Party{Name: "Carol"}}
	require.NoError(t, op.Apply(rec))
	assert.Len(t, rec.Parties, 3)

	op = vcon.SubOp{Collection: vcon.CollectionParties, Kind: vcon.OpUpdate, Index: 2, Party: &vcon.Party{Name: "Carole"}}
	require.NoError(t, op.Apply(rec))
	assert.Equal(t, "Carole", rec.Parties[2].Name)

	op = vcon.SubOp{Collection: vcon.CollectionParties, Kind: vcon.OpRemove, Index: 2}
	require.NoError(t, op.Apply(rec))
	assert.Len(t, rec.Parties, 2)
}

func TestSubOp_Apply_Errors(t *testing.T) {
	rec := validRecord()

	err := vcon.SubOp{Collection: "bodies", Kind: vcon.OpAdd}.Apply(rec)
	assert.ErrorIs(t, err, vcon.ErrBadOp)

	err = vcon.SubOp{Collection: vcon.CollectionDialog, Kind: vcon.OpAdd}.Apply(rec)
	assert.ErrorIs(t, err, vcon.ErrBadOp)

	err = vcon.SubOp{Collection: vcon.CollectionDialog, Kind: vcon.OpRemove, Index: 5}.Apply(rec)
	assert.ErrorIs(t, err, vcon.ErrIndexOutOfRange)

	err = vcon.SubOp{Collection: vcon.CollectionDialog, Kind: "swap", Index: 0}.Apply(rec)
	assert.ErrorIs(t, err, vcon.ErrBadOp)
}
