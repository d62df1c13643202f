package tags

// MatchMode selects how a tag query is evaluated against a record's
// decoded tag set.
type MatchMode string

const (
	// MatchAll requires every queried key to be present with a matching
	// value (conjunction).
	MatchAll MatchMode = "all"

	// MatchAny requires at least one queried key to match (disjunction).
	MatchAny MatchMode = "any"

	// MatchExact requires the record's full tag set to equal the query
	// exactly: no extra keys, no missing keys.
	MatchExact MatchMode = "exact"
)

// Valid reports whether m is a known match mode.
func (m MatchMode) Valid() bool {
	switch m {
	case MatchAll, MatchAny, MatchExact:
		return true
	}
	return false
}

// Matches evaluates query against the record's decoded tags. Values
// compare by canonical string form, so 8080 matches "8080" regardless of
// which side was decoded from the wire.
func Matches(recordTags, query map[string]any, mode MatchMode) bool {
	switch mode {
	case MatchAny:
		for k, qv := range query {
			if rv, ok := recordTags[k]; ok && equalValue(rv, qv) {
				return true
			}
		}
		return false
	case MatchExact:
		if len(recordTags) != len(query) {
			return false
		}
		return allMatch(recordTags, query)
	default: // MatchAll is the default mode
		return allMatch(recordTags, query)
	}
}

func allMatch(recordTags, query map[string]any) bool {
	for k, qv := range query {
		rv, ok := recordTags[k]
		if !ok || !equalValue(rv, qv) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	fa, errA := FormatValue(a)
	fb, errB := FormatValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return fa == fb
}
