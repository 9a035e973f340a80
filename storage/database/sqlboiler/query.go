// Package boiledrepos implements the repositories on PostgreSQL with the sqlboiler query builder.
package boiledrepos

import (
	"fmt"
	"strings"

	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

var dialect = drivers.Dialect{
	LQ:                   '"',
	RQ:                   '"',
	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

// TableNames are the tables created by the migrations.
var TableNames = struct {
	Record         string
	Role           string
	RecurrenceRule string
	Occurrence     string
}{
	Record:         "record",
	Role:           "role",
	RecurrenceRule: "recurrence_rule",
	Occurrence:     "occurrence",
}

func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

func from(table string) qm.QueryMod {
	return qm.From(fmt.Sprintf("%q", table))
}

func getExec(exec core.DBExecutor, svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return exec
}

// filter columns
var (
	scalarColumns = map[string]bool{
		record.FieldID:         true,
		record.FieldCreatedBy:  true,
		record.FieldCourse:     true,
		record.FieldAuthor:     true,
		record.FieldGrader:     true,
		record.FieldActiveRole: true,
	}
	arrayColumns = map[string]bool{
		record.FieldMembers: true,
		record.FieldRoles:   true,
	}
)

// filterMod translates f into a WHERE expression: clauses are OR-ed, conditions AND-ed.
// A nil filter adds nothing, an empty one matches no row.
func filterMod(f *record.Filter) qm.QueryMod {
	if f == nil {
		return nil
	}
	if f.IsEmpty() {
		return qm.Where("FALSE")
	}

	clauseMods := make([]qm.QueryMod, 0, len(f.Clauses))
	for _, cl := range f.Clauses {
		conds := make([]string, 0, len(cl))
		args := make([]interface{}, 0, len(cl))
		for _, c := range cl {
			switch {
			case c.Op == record.OpEq && scalarColumns[c.Field]:
				conds = append(conds, fmt.Sprintf("%q = ?", c.Field))
				args = append(args, c.Value)
			case c.Op == record.OpContains && arrayColumns[c.Field]:
				conds = append(conds, fmt.Sprintf("? = ANY(%q)", c.Field))
				args = append(args, c.Value)
			default:
				// same as the in-memory store: unknown tests never match
				conds = append(conds, "FALSE")
			}
		}
		if len(conds) == 0 {
			conds = append(conds, "TRUE")
		}
		clauseMods = append(clauseMods, qm.Or2(qm.Where(strings.Join(conds, " AND "), args...)))
	}
	return qm.Expr(clauseMods...)
}

func orderMod(ords []core.DBOrdering, allowed ...string) qm.QueryMod {
	orderList := make([]string, 0, len(ords)+2)
	for _, ord := range ords {
		for _, a := range allowed {
			if a == ord.Field {
				orderList = append(orderList, fmt.Sprintf("%q", ord.Field)+strings.TrimPrefix(ord.String(), ord.Field))
				break
			}
		}
	}
	orderList = append(orderList, `"created_at" ASC`, `"id" ASC`)
	return qm.OrderBy(strings.Join(orderList, ", "))
}

// placeholders returns "($n, $n+1, ...)" for cols values starting at $start.
func placeholders(start, cols int) string {
	ph := make([]string, 0, cols)
	for i := 0; i < cols; i++ {
		ph = append(ph, fmt.Sprintf("$%d", start+i))
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

func appendMods(mods []qm.QueryMod, extra ...qm.QueryMod) []qm.QueryMod {
	for _, m := range extra {
		if m != nil {
			mods = append(mods, m)
		}
	}
	return mods
}
