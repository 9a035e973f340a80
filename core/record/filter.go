package record

import (
	"sort"
	"strings"
)

type Op string

const (
	// OpEq tests that a scalar field equals the value.
	OpEq Op = "eq"
	// OpContains tests that an array field contains the value.
	OpContains Op = "contains"
)

// Condition is a single relationship test.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value string `json:"value"`
}

func Eq(field, value string) Condition       { return Condition{Field: field, Op: OpEq, Value: value} }
func Contains(field, value string) Condition { return Condition{Field: field, Op: OpContains, Value: value} }

func (c Condition) Matches(rec Record) bool {
	values, ok := rec.Values(c.Field)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		if len(values) == 0 {
			return c.Value == ""
		}
		return len(values) == 1 && values[0] == c.Value
	case OpContains:
		return contains(values, c.Value)
	}
	return false
}

func (c Condition) String() string {
	if c.Op == OpContains {
		return c.Value + " in " + c.Field
	}
	return c.Field + " = " + c.Value
}

// Clause is an AND of conditions. An empty clause matches every record.
type Clause []Condition

func (cl Clause) Matches(rec Record) bool {
	for _, c := range cl {
		if !c.Matches(rec) {
			return false
		}
	}
	return true
}

// satisfiable is false when two equality tests on one field want different values.
func (cl Clause) satisfiable() bool {
	eqs := make(map[string]string, len(cl))
	for _, c := range cl {
		if c.Op != OpEq {
			continue
		}
		if v, ok := eqs[c.Field]; ok && v != c.Value {
			return false
		}
		eqs[c.Field] = c.Value
	}
	return true
}

func (cl Clause) has(cond Condition) bool {
	for _, c := range cl {
		if c == cond {
			return true
		}
	}
	return false
}

func (cl Clause) String() string {
	parts := make([]string, 0, len(cl))
	for _, c := range cl {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " AND ")
}

// Filter is an OR of clauses. A filter without clauses matches nothing;
// repositories take a *Filter where nil means no restriction.
type Filter struct {
	Clauses []Clause `json:"clauses"`
}

// Where builds a single clause filter.
func Where(conds ...Condition) Filter {
	return Filter{Clauses: []Clause{conds}}
}

// Or joins the clauses of every filter, dropping duplicates.
func Or(filters ...Filter) Filter {
	var f Filter
	for _, other := range filters {
		for _, cl := range other.Clauses {
			f = f.add(cl)
		}
	}
	return f
}

func (f Filter) add(cl Clause) Filter {
	key := cl.key()
	for _, existing := range f.Clauses {
		if existing.key() == key {
			return f
		}
	}
	f.Clauses = append(f.Clauses, cl)
	return f
}

func (cl Clause) key() string {
	parts := make([]string, 0, len(cl))
	for _, c := range cl {
		parts = append(parts, string(c.Op)+"\x00"+c.Field+"\x00"+c.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, "\x01")
}

// IsEmpty reports whether f can match no record at all.
func (f Filter) IsEmpty() bool { return len(f.Clauses) == 0 }

func (f Filter) Matches(rec Record) bool {
	for _, cl := range f.Clauses {
		if cl.Matches(rec) {
			return true
		}
	}
	return false
}

// Narrow ANDs cond into every clause, dropping clauses that can no longer be satisfied.
func (f Filter) Narrow(cond Condition) Filter {
	var narrowed Filter
	for _, cl := range f.Clauses {
		next := cl
		if !cl.has(cond) {
			next = append(append(make(Clause, 0, len(cl)+1), cl...), cond)
		}
		if next.satisfiable() {
			narrowed = narrowed.add(next)
		}
	}
	return narrowed
}

func (f Filter) String() string {
	if f.IsEmpty() {
		return "<nothing>"
	}
	parts := make([]string, 0, len(f.Clauses))
	for _, cl := range f.Clauses {
		parts = append(parts, "("+cl.String()+")")
	}
	return strings.Join(parts, " OR ")
}
