package portal

import (
	"fmt"
	"strings"
)

// QueryBuilder assembles portal search queries from match/in terms,
// mirroring the sharing API's `field:"value"` syntax. Terms are joined
// with AND.
//
//	NewQuery().Match(groupID).In("group").String()
//	NewQuery().Match(orgID).In("orgid").And().Match("root").In("ownerfolder").String()
type QueryBuilder struct {
	parts   []string
	pending string
}

// NewQuery returns an empty builder.
func NewQuery() *QueryBuilder {
	return &QueryBuilder{}
}

// Match stages a value for the next In call.
func (q *QueryBuilder) Match(value string) *QueryBuilder {
	q.pending = value
	return q
}

// In completes the staged term against the given field.
func (q *QueryBuilder) In(field string) *QueryBuilder {
	q.parts = append(q.parts, fmt.Sprintf("%s:%q", field, q.pending))
	q.pending = ""
	return q
}

// And is a no-op separator kept for readability; terms are always
// joined with AND.
func (q *QueryBuilder) And() *QueryBuilder {
	return q
}

// String renders the query.
func (q *QueryBuilder) String() string {
	return strings.Join(q.parts, " AND ")
}
