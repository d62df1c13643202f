// Package tags encodes and decodes the key-value tag facility layered on
// top of the reserved "tags" attachment.
//
// Tags are not a first-class table anywhere: the whole tag set for a
// record lives in a single attachment whose body is a JSON array of
// "key:value" strings. This package is a pure codec plus the match-mode
// predicate; it persists nothing and knows nothing about storage, so the
// all/any/exact semantics stay unit-testable on their own.
package tags

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/vcond/internal/vcon"
)

// Warning reports a tag entry that could not be parsed. Decode keeps
// going; one malformed entry never aborts the whole decode.
type Warning struct {
	Entry   string `json:"entry"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("tag entry %q: %s", w.Entry, w.Message)
}

// Encode packs tags into the reserved attachment. Keys are sorted so the
// encoded body is deterministic for diffing and tests. Keys must be
// non-empty and colon-free; values are bool, a number type, or string.
func Encode(tags map[string]any) (vcon.Attachment, error) {
	entries := make([]string, 0, len(tags))
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			return vcon.Attachment{}, fmt.Errorf("tag key must not be empty")
		}
		if strings.Contains(k, ":") {
			return vcon.Attachment{}, fmt.Errorf("tag key %q must not contain a colon", k)
		}
		val, err := FormatValue(tags[k])
		if err != nil {
			return vcon.Attachment{}, fmt.Errorf("tag %q: %w", k, err)
		}
		entries = append(entries, k+":"+val)
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return vcon.Attachment{}, fmt.Errorf("encoding tag entries: %w", err)
	}
	return vcon.Attachment{
		Type:     vcon.TagsAttachmentType,
		Body:     string(body),
		Encoding: vcon.EncodingJSON,
	}, nil
}

// Decode unpacks the tags attachment into a typed map. A nil attachment
// yields an empty map. Malformed entries are reported as warnings and
// skipped. Duplicate keys resolve last-write-wins.
func Decode(att *vcon.Attachment) (map[string]any, []Warning) {
	out := map[string]any{}
	if att == nil || att.Body == "" {
		return out, nil
	}

	var entries []string
	if err := json.Unmarshal([]byte(att.Body), &entries); err != nil {
		return out, []Warning{{Entry: att.Body, Message: "body is not a JSON array of strings"}}
	}

	var warns []Warning
	for _, e := range entries {
		k, raw, ok := strings.Cut(e, ":")
		if !ok || k == "" {
			warns = append(warns, Warning{Entry: e, Message: `entry does not match the "key:value" shape`})
			continue
		}
		out[k] = ParseValue(raw)
	}
	return out, warns
}

// DecodeStrict is Decode with malformed entries escalated to an error.
func DecodeStrict(att *vcon.Attachment) (map[string]any, error) {
	out, warns := Decode(att)
	if len(warns) > 0 {
		return nil, fmt.Errorf("malformed tag: %s", warns[0])
	}
	return out, nil
}

// ParseValue infers bool, then number, then string from the substring
// after the first colon. Values containing further colons fail both
// numeric and boolean parsing and survive as strings, colon intact.
func ParseValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// FormatValue renders a tag value in its canonical string form, the one
// ParseValue maps back to the same value.
func FormatValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("unsupported tag value type %T", v)
	}
}
