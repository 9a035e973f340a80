package access

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/record"
)

// Target is what an operation is applied to. Every field is optional.
type Target struct {
	// RecordID narrows the decision to one stored record.
	RecordID string
	// Proposed is the payload being written (create & update).
	Proposed *record.Record
	// Existing is the stored record when the caller already loaded it.
	Existing *record.Record
}

// Env is everything an Evaluator may look at.
type Env struct {
	Principal *Principal
	Perms     Set
	Resource  record.Resource
	Operation Operation
	Target    Target
	Records   record.Repository
}

// Evaluator decides one (resource, operation) pair.
// An error means a related record could not be fetched; the engine then denies.
type Evaluator interface {
	Evaluate(ctx context.Context, env Env) (Decision, error)
}

// ClauseFunc returns the clauses a qualifier grants to the principal.
type ClauseFunc func(ctx context.Context, env Env) ([]record.Clause, error)

// QualifierRule binds a qualifier to its relationship test.
type QualifierRule struct {
	Qualifier Qualifier
	Clauses   ClauseFunc
}

type registryKey struct {
	resource record.Resource
	op       Operation
}

// Registry maps (resource, operation) pairs to their evaluator.
type Registry struct {
	evaluators map[registryKey]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[registryKey]Evaluator)}
}

func (reg *Registry) Register(res record.Resource, op Operation, ev Evaluator) {
	reg.evaluators[registryKey{res, op}] = ev
}

// RegisterQualified registers the generic evaluator: unconditional permission first, then qualifiers.
func (reg *Registry) RegisterQualified(res record.Resource, op Operation, rules ...QualifierRule) {
	reg.Register(res, op, qualifiedEvaluator{rules: rules})
}

func (reg *Registry) Lookup(res record.Resource, op Operation) (Evaluator, bool) {
	ev, ok := reg.evaluators[registryKey{res, op}]
	return ev, ok
}

func (reg *Registry) keys() []registryKey {
	keys := make([]registryKey, 0, len(reg.evaluators))
	for k := range reg.evaluators {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].resource == keys[j].resource {
			return keys[i].op < keys[j].op
		}
		return keys[i].resource < keys[j].resource
	})
	return keys
}

func (reg *Registry) qualifiers(res record.Resource, op Operation) []Qualifier {
	ev, ok := reg.Lookup(res, op)
	if !ok {
		return nil
	}
	qev, ok := ev.(qualifiedEvaluator)
	if !ok {
		return nil
	}
	qs := make([]Qualifier, 0, len(qev.rules))
	for _, r := range qev.rules {
		qs = append(qs, r.Qualifier)
	}
	return qs
}

type qualifiedEvaluator struct {
	rules []QualifierRule
}

func (qe qualifiedEvaluator) Evaluate(ctx context.Context, env Env) (Decision, error) {
	if env.Perms.Has(Permission(env.Resource, env.Operation)) {
		return Allowed, nil
	}

	var filter record.Filter
	for _, rule := range qe.rules {
		if !env.Perms.Has(Permission(env.Resource, env.Operation, rule.Qualifier)) {
			continue
		}
		clauses, err := rule.Clauses(ctx, env)
		if err != nil {
			return Denied, errors.Wrapf(err, "evaluating %s", Permission(env.Resource, env.Operation, rule.Qualifier))
		}
		filter = record.Or(filter, record.Filter{Clauses: clauses})
	}
	decision := AllowIf(filter)

	// nothing is stored yet on create: test the payload now
	if env.Operation == Create {
		if env.Target.Proposed == nil {
			return Denied, nil
		}
		proposed := env.Target.Proposed.Clone()
		proposed.Type = env.Resource
		proposed.CreatedBy = env.Principal.ID
		return Resolve(decision.Permits(proposed)), nil
	}
	return decision, nil
}

// Relationship tests

// FieldIsPrincipal grants records whose scalar field references the principal.
func FieldIsPrincipal(field string) ClauseFunc {
	return func(_ context.Context, env Env) ([]record.Clause, error) {
		return []record.Clause{{record.Eq(field, env.Principal.ID)}}, nil
	}
}

// FieldHasPrincipal grants records whose array field contains the principal.
func FieldHasPrincipal(field string) ClauseFunc {
	return func(_ context.Context, env Env) ([]record.Clause, error) {
		return []record.Clause{{record.Contains(field, env.Principal.ID)}}, nil
	}
}

// CourseHasPrincipal grants records belonging to a course the principal is a member of.
// The principal's courses are fetched once and expanded into one clause per course.
func CourseHasPrincipal(ctx context.Context, env Env) ([]record.Clause, error) {
	if env.Records == nil {
		return nil, errors.New("no record repository to resolve course membership")
	}
	memberOf := record.Where(record.Contains(record.FieldMembers, env.Principal.ID))
	courses, err := env.Records.Find(ctx, record.Courses, &memberOf, record.FindOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "finding principal courses")
	}
	clauses := make([]record.Clause, 0, len(courses))
	for _, c := range courses {
		clauses = append(clauses, record.Clause{record.Eq(record.FieldCourse, c.ID)})
	}
	return clauses, nil
}

var (
	creatorOnly = QualifierRule{Qualifier: CreatorOnly, Clauses: FieldIsPrincipal(record.FieldCreatedBy)}
	authorOnly  = QualifierRule{Qualifier: AuthorOnly, Clauses: FieldIsPrincipal(record.FieldAuthor)}
	graderOnly  = QualifierRule{Qualifier: GraderOnly, Clauses: FieldIsPrincipal(record.FieldGrader)}
	// courses list their own members
	courseMemberOnly = QualifierRule{Qualifier: MemberOnly, Clauses: FieldHasPrincipal(record.FieldMembers)}
	// everything else belongs to a course
	memberOnly = QualifierRule{Qualifier: MemberOnly, Clauses: CourseHasPrincipal}
)

// DefaultRegistry is the policy table of the learning platform.
func DefaultRegistry() *Registry {
	reg := NewRegistry()

	for _, op := range Operations {
		reg.RegisterQualified(record.Roles, op)
		reg.Register(record.Users, op, usersEvaluator{})
	}

	reg.RegisterQualified(record.Courses, Create)
	reg.RegisterQualified(record.Courses, Read, courseMemberOnly, creatorOnly)
	reg.RegisterQualified(record.Courses, Update, creatorOnly, courseMemberOnly)
	reg.RegisterQualified(record.Courses, Delete, creatorOnly)

	// course content owned by its creator
	for _, res := range []record.Resource{record.Assignments, record.Media, record.Lessons, record.Recurrences} {
		reg.RegisterQualified(res, Create, memberOnly)
		reg.RegisterQualified(res, Read, memberOnly, creatorOnly)
		reg.RegisterQualified(res, Update, creatorOnly, memberOnly)
		reg.RegisterQualified(res, Delete, creatorOnly)
	}

	// course content owned by its author
	for _, res := range []record.Resource{record.Announcements, record.Comments} {
		reg.RegisterQualified(res, Create, memberOnly)
		reg.RegisterQualified(res, Read, memberOnly, authorOnly)
		reg.RegisterQualified(res, Update, authorOnly)
		reg.RegisterQualified(res, Delete, authorOnly, creatorOnly)
	}

	reg.RegisterQualified(record.Submissions, Create, memberOnly)
	reg.RegisterQualified(record.Submissions, Read, authorOnly, graderOnly, memberOnly)
	reg.RegisterQualified(record.Submissions, Update, authorOnly, graderOnly)
	reg.RegisterQualified(record.Submissions, Delete, authorOnly)

	reg.RegisterQualified(record.Grades, Create, memberOnly)
	reg.RegisterQualified(record.Grades, Read, authorOnly, graderOnly, memberOnly)
	reg.RegisterQualified(record.Grades, Update, graderOnly)
	reg.RegisterQualified(record.Grades, Delete, graderOnly)

	reg.RegisterQualified(record.Sessions, Create, memberOnly)
	reg.RegisterQualified(record.Sessions, Read, memberOnly)
	reg.RegisterQualified(record.Sessions, Update, memberOnly, creatorOnly)
	reg.RegisterQualified(record.Sessions, Delete, memberOnly, creatorOnly)

	return reg
}
