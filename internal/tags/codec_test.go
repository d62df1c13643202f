package tags_test

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vcond/internal/tags"
	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

func TestEncode_SortedAndDeterministic(t *testing.T) {
	att, err := tags.Encode(map[string]any{
		"priority": "high",
		"dept":     "sales",
		"billable": true,
		"calls":    float64(3),
	})
	require.NoError(t, err)

	assert.Equal(t, vcon.TagsAttachmentType, att.Type)
	assert.Equal(t, vcon.EncodingJSON, att.Encoding)
	assert.Equal(t, `["billable:true","calls:3","dept:sales","priority:high"]`, att.Body)
}

func TestEncode_RejectsBadKeys(t *testing.T) {
	_, err := tags.Encode(map[string]any{"": "x"})
	assert.Error(t, err)

	_, err = tags.Encode(map[string]any{"a:b": "x"})
	assert.Error(t, err)

	_, err = tags.Encode(map[string]any{"k": struct{}{}})
	assert.Error(t, err)
}

func TestDecode_MissingAttachment(t *testing.T) {
	got, warns := tags.Decode(nil)
	assert.Empty(t, got)
	assert.Empty(t, warns)
}

func TestDecode_TypeInference(t *testing.T) {
	att := vcon.Attachment{
		Type:     vcon.TagsAttachmentType,
		Body:     `["flag:true","off:false","count:42","score:3.5","name:alice","when:10:30"]`,
		Encoding: vcon.EncodingJSON,
	}
	got, warns := tags.Decode(&att)
	require.Empty(t, warns)

	assert.Equal(t, true, got["flag"])
	assert.Equal(t, false, got["off"])
	assert.Equal(t, float64(42), got["count"])
	assert.Equal(t, 3.5, got["score"])
	assert.Equal(t, "alice", got["name"])
	// Extra colons stay in the string value.
	assert.Equal(t, "10:30", got["when"])
}

func TestDecode_MalformedEntriesWarnNotAbort(t *testing.T) {
	att := vcon.Attachment{
		Type: vcon.TagsAttachmentType,
		Body: `["dept:sales","nocolon","priority:high"]`,
	}
	got, warns := tags.Decode(&att)

	require.Len(t, warns, 1)
	assert.Equal(t, "nocolon", warns[0].Entry)
	assert.Equal(t, map[string]any{"dept": "sales", "priority": "high"}, got)
}

func TestDecode_NonArrayBody(t *testing.T) {
	att := vcon.Attachment{Type: vcon.TagsAttachmentType, Body: `{"dept":"sales"}`}
	got, warns := tags.Decode(&att)
	assert.Empty(t, got)
	assert.Len(t, warns, 1)
}

func TestDecode_LastWriteWins(t *testing.T) {
	att := vcon.Attachment{Type: vcon.TagsAttachmentType, Body: `["k:first","k:second"]`}
	got, warns := tags.Decode(&att)
	require.Empty(t, warns)
	assert.Equal(t, "second", got["k"])
}

func TestDecodeStrict_EscalatesMalformed(t *testing.T) {
	att := vcon.Attachment{Type: vcon.TagsAttachmentType, Body: `["ok:1","broken"]`}
	_, err := tags.DecodeStrict(&att)
	assert.Error(t, err)

	att.Body = `["ok:1"]`
	got, err := tags.DecodeStrict(&att)
	require.NoError(t, err)
	assert.Equal(t, float64(1), got["ok"])
}

// TestRoundTrip_Property checks decode(encode(T)) == T over random maps
// of string, number, and boolean values.
func TestRoundTrip_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		in := map[string]any{}
		for i := 0; i < rng.Intn(8); i++ {
			key := fmt.Sprintf("key_%c%d", 'a'+rng.Intn(26), i)
			switch rng.Intn(3) {
			case 0:
				in[key] = fmt.Sprintf("val-%d", rng.Intn(10000))
			case 1:
				// Round through the formatter so 'g'-format floats compare equal.
				in[key] = float64(rng.Intn(100000)) / 10
			case 2:
				in[key] = rng.Intn(2) == 0
			}
		}

		att, err := tags.Encode(in)
		require.NoError(t, err)
		out, warns := tags.Decode(&att)
		require.Empty(t, warns)
		assert.Equal(t, in, out, "trial %d", trial)
	}
}

func TestEncodedBodyIsValidJSONArray(t *testing.T) {
	att, err := tags.Encode(map[string]any{"dept": "sales"})
	require.NoError(t, err)

	var entries []string
	require.NoError(t, json.Unmarshal([]byte(att.Body), &entries))
	assert.Equal(t, []string{"dept:sales"}, entries)
}
