package engine

// FilterOp is the kind of comparison a Filter performs.
type FilterOp int

const (
	// OpTerm matches documents whose field equals Value, or contains it when
	// the field holds several values.
	OpTerm FilterOp = iota
	// OpIDs matches documents whose id is one of Values.
	OpIDs
	// OpLTE matches documents whose field is less than or equal to Value.
	// Documents without the field never match.
	OpLTE
)

// Filter is a non-scoring condition on a document.
type Filter struct {
	Field  string
	Op     FilterOp
	Value  any
	Values []any
	// Not inverts the filter.
	Not bool
}

// Term returns a filter matching field == value.
func Term(field string, value any) Filter {
	return Filter{Field: field, Op: OpTerm, Value: value}
}

// IDs returns a filter matching any of the given document ids.
func IDs(ids ...string) Filter {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return Filter{Op: OpIDs, Values: values}
}

// LTE returns a filter matching field <= value.
func LTE(field string, value any) Filter {
	return Filter{Field: field, Op: OpLTE, Value: value}
}

// Negate returns f inverted.
func (f Filter) Negate() Filter {
	f.Not = !f.Not
	return f
}

// Sort orders search results by a field.
type Sort struct {
	Field string
	Desc  bool
}

// Query describes a search.
type Query struct {
	// Filters must all match.
	Filters []Filter
	// Text is an optional free-text query on TextField. When set, results
	// are ordered by relevance and documents that do not match are excluded.
	Text      string
	TextField string
	// Sort applies when Text is empty.
	Sort []Sort
	Size int
	From int
}

// source renders the query DSL body.
func (q Query) source() map[string]any {
	body := map[string]any{
		"query":            boolQuery(q.Filters, q.Text, q.TextField),
		"track_total_hits": true,
		"size":             q.Size,
	}
	if q.From > 0 {
		body["from"] = q.From
	}
	if q.Text == "" && len(q.Sort) > 0 {
		sorts := make([]any, 0, len(q.Sort))
		for _, s := range q.Sort {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			sorts = append(sorts, map[string]any{s.Field: map[string]any{"order": order}})
		}
		body["sort"] = sorts
	}
	return body
}

// boolQuery renders filters and an optional match clause as a query.
func boolQuery(filters []Filter, text, textField string) map[string]any {
	var must, mustNot, filter []any
	for _, f := range filters {
		clause := f.clause()
		if f.Not {
			mustNot = append(mustNot, clause)
		} else {
			filter = append(filter, clause)
		}
	}
	if text != "" {
		must = append(must, map[string]any{
			"match": map[string]any{textField: map[string]any{"query": text}},
		})
	}

	if len(must) == 0 && len(mustNot) == 0 && len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}

	b := map[string]any{}
	if len(must) > 0 {
		b["must"] = must
	}
	if len(filter) > 0 {
		b["filter"] = filter
	}
	if len(mustNot) > 0 {
		b["must_not"] = mustNot
	}
	return map[string]any{"bool": b}
}

func (f Filter) clause() map[string]any {
	switch f.Op {
	case OpIDs:
		return map[string]any{"ids": map[string]any{"values": f.Values}}
	case OpLTE:
		return map[string]any{"range": map[string]any{f.Field: map[string]any{"lte": f.Value}}}
	default:
		return map[string]any{"term": map[string]any{f.Field: f.Value}}
	}
}
