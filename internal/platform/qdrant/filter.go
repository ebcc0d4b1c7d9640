package qdrant

// Match is a single exact-match condition on a payload field.
type Match struct {
	Field string
	Value any
}

// Filter narrows search and scroll results. Every Must clause has to hold,
// and when Should clauses are present at least one of them has to hold.
type Filter struct {
	Must   []Match
	Should []Match
}

// Empty reports whether the filter carries no conditions at all.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Must) == 0 && len(f.Should) == 0)
}

// wire renders the filter in Qdrant's request shape, or nil when empty.
func (f *Filter) wire() map[string]any {
	if f.Empty() {
		return nil
	}
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = matchClauses(f.Must)
	}
	if len(f.Should) > 0 {
		out["should"] = matchClauses(f.Should)
	}
	return out
}

func matchClauses(matches []Match) []map[string]any {
	clauses := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		clauses = append(clauses, map[string]any{
			"key":   m.Field,
			"match": map[string]any{"value": m.Value},
		})
	}
	return clauses
}
