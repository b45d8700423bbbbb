package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/smartyellow/services/core/document"
	"github.com/smartyellow/services/core/schema"
)

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpIn       Op = "in"       // value is one of a list
	OpContains Op = "contains" // array holds the value
	OpMatch    Op = "match"    // case-insensitive regex on text, any locale of a stringset
)

// Cond compares the value at Path with Value.
type Cond struct {
	Path  schema.Path
	Op    Op
	Value any
}

// Eq matches records whose value at key equals v.
func Eq(key string, v any) Cond { return Cond{Path: schema.MustPath(key), Op: OpEq, Value: v} }

// Ne matches records whose value at key differs from v.
func Ne(key string, v any) Cond { return Cond{Path: schema.MustPath(key), Op: OpNe, Value: v} }

// In matches records whose value at key is one of vs.
func In(key string, vs ...string) Cond {
	list := make([]any, len(vs))
	for i, v := range vs {
		list[i] = v
	}
	return Cond{Path: schema.MustPath(key), Op: OpIn, Value: list}
}

// Contains matches records whose array at key holds v.
func Contains(key string, v any) Cond {
	return Cond{Path: schema.MustPath(key), Op: OpContains, Value: v}
}

// Match matches records whose text at key matches pattern.
func Match(key, pattern string) Cond {
	return Cond{Path: schema.MustPath(key), Op: OpMatch, Value: pattern}
}

// Sort orders results by the value at Path.
type Sort struct {
	Path schema.Path
	Desc bool
}

// Query selects records. All Where conditions must hold; when Any is not
// empty at least one of its conditions must hold too.
type Query struct {
	Where []Cond
	Any   []Cond
	Sort  []Sort
	Limit int
}

// ByID selects the record with the given id.
func ByID(id string) Query {
	return Query{Where: []Cond{Eq("id", id)}}
}

// Matcher evaluates a query against records.
type Matcher struct {
	q   Query
	res map[*Cond]*regexp.Regexp
}

// Compile prepares q for repeated evaluation.
func Compile(q Query) (*Matcher, error) {
	m := &Matcher{q: q, res: make(map[*Cond]*regexp.Regexp)}
	for _, group := range [][]Cond{m.q.Where, m.q.Any} {
		for i := range group {
			c := &group[i]
			if c.Op != OpMatch {
				continue
			}
			pattern, ok := c.Value.(string)
			if !ok {
				return nil, fmt.Errorf("match on %s: pattern must be a string", c.Path)
			}
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("match on %s: %w", c.Path, err)
			}
			m.res[c] = re
		}
	}
	return m, nil
}

// Match reports whether rec satisfies the query.
func (m *Matcher) Match(rec document.Values) bool {
	for i := range m.q.Where {
		if !m.cond(&m.q.Where[i], rec) {
			return false
		}
	}
	if len(m.q.Any) == 0 {
		return true
	}
	for i := range m.q.Any {
		if m.cond(&m.q.Any[i], rec) {
			return true
		}
	}
	return false
}

func (m *Matcher) cond(c *Cond, rec document.Values) bool {
	got, present := rec.Get(c.Path)

	switch c.Op {
	case OpEq:
		return present && document.Equal(got, c.Value)
	case OpNe:
		return !present || !document.Equal(got, c.Value)
	case OpIn:
		list, _ := c.Value.([]any)
		for _, v := range list {
			if present && document.Equal(got, v) {
				return true
			}
		}
		return false
	case OpContains:
		items, _ := got.([]any)
		for _, it := range items {
			if document.Equal(it, c.Value) {
				return true
			}
		}
		return false
	case OpMatch:
		return matchText(m.res[c], got)
	}
	return false
}

func matchText(re *regexp.Regexp, val any) bool {
	if re == nil {
		return false
	}
	switch t := val.(type) {
	case string:
		return re.MatchString(t)
	case map[string]any:
		for _, v := range t {
			if matchText(re, v) {
				return true
			}
		}
	case []any:
		for _, v := range t {
			if matchText(re, v) {
				return true
			}
		}
	}
	return false
}

// Apply filters, sorts and limits recs in memory.
func Apply(recs []document.Values, q Query) ([]document.Values, error) {
	m, err := Compile(q)
	if err != nil {
		return nil, err
	}
	out := make([]document.Values, 0, len(recs))
	for _, r := range recs {
		if m.Match(r) {
			out = append(out, r)
		}
	}
	SortRecords(out, q.Sort)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// SortRecords orders recs by the given keys. Missing values sort first.
func SortRecords(recs []document.Values, keys []Sort) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, k := range keys {
			a, _ := recs[i].Get(k.Path)
			b, _ := recs[j].Get(k.Path)
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch ta := a.(type) {
	case string:
		if tb, ok := b.(string); ok {
			return strings.Compare(ta, tb)
		}
	case float64:
		if tb, ok := b.(float64); ok {
			switch {
			case ta < tb:
				return -1
			case ta > tb:
				return 1
			}
			return 0
		}
	case bool:
		if tb, ok := b.(bool); ok && ta != tb {
			if !ta {
				return -1
			}
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
