package access

import (
	"sort"
	"strings"

	"github.com/trezcool/academia/core/record"
)

// Operation is a CRUD action on a resource.
type Operation string

const (
	Create Operation = "create"
	Read   Operation = "read"
	Update Operation = "update"
	Delete Operation = "delete"
)

var Operations = []Operation{Create, Read, Update, Delete}

func (op Operation) IsKnown() bool {
	switch op {
	case Create, Read, Update, Delete:
		return true
	}
	return false
}

// Qualifier narrows a permission to records in a relationship with the principal.
type Qualifier string

const (
	CreatorOnly Qualifier = "creator_only"
	MemberOnly  Qualifier = "member_only"
	AuthorOnly  Qualifier = "author_only"
	GraderOnly  Qualifier = "grader_only"
	// SelfOnly only applies to users.
	SelfOnly Qualifier = "self"
)

// Separator joins the levels of permission and view strings.
const Separator = ":"

// Permission builds "resource:operation[:qualifier]".
func Permission(res record.Resource, op Operation, qualifier ...Qualifier) string {
	perm := string(res) + Separator + string(op)
	if len(qualifier) > 0 && qualifier[0] != "" {
		perm += Separator + string(qualifier[0])
	}
	return perm
}

// RolePermission builds the users permission scoped to a role, e.g. "users:create:teacher".
func RolePermission(op Operation, iamName string) string {
	return Permission(record.Users, op, Qualifier(iamName))
}

// ParsePermission splits a permission string. The qualifier is empty for unconditional permissions.
func ParsePermission(perm string) (res record.Resource, op Operation, qualifier Qualifier, ok bool) {
	parts := strings.SplitN(perm, Separator, 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	res, op = record.Resource(parts[0]), Operation(parts[1])
	if len(parts) == 3 {
		if parts[2] == "" {
			return "", "", "", false
		}
		qualifier = Qualifier(parts[2])
	}
	return res, op, qualifier, true
}

// View capabilities.
const (
	TableView  = "table"
	CardView   = "card"
	DetailView = "detail"
	CreateView = "create"
)

var viewCapabilities = []string{TableView, CardView, DetailView, CreateView}

// View builds "resource:capability".
func View(res record.Resource, capability string) string {
	return string(res) + Separator + capability
}

// Vocabulary lists every permission and view string the registry can interpret,
// including the role scoped users permissions of the given roles.
func Vocabulary(reg *Registry, roles []Role) (perms, views []string) {
	permSet := make(Set)
	for _, key := range reg.keys() {
		permSet.Add(Permission(key.resource, key.op))
		for _, q := range reg.qualifiers(key.resource, key.op) {
			permSet.Add(Permission(key.resource, key.op, q))
		}
	}
	for _, op := range Operations {
		permSet.Add(Permission(record.Users, op))
		permSet.Add(Permission(record.Users, op, SelfOnly))
		for _, role := range roles {
			if role.IAMName != "" {
				permSet.Add(RolePermission(op, role.IAMName))
			}
		}
	}
	perms = permSet.Slice()

	views = make([]string, 0, len(record.AllResources)*len(viewCapabilities))
	for _, res := range record.AllResources {
		for _, c := range viewCapabilities {
			views = append(views, View(res, c))
		}
	}
	sort.Strings(views)
	return perms, views
}

// Set is a set of permission or view strings.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s.Add(it)
	}
	return s
}

func (s Set) Add(items ...string) {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			s[it] = struct{}{}
		}
	}
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// WithPrefix returns the suffixes of every item starting with prefix.
func (s Set) WithPrefix(prefix string) []string {
	var found []string
	for it := range s {
		if strings.HasPrefix(it, prefix) && len(it) > len(prefix) {
			found = append(found, it[len(prefix):])
		}
	}
	sort.Strings(found)
	return found
}

// Slice returns the sorted items.
func (s Set) Slice() []string {
	items := make([]string, 0, len(s))
	for it := range s {
		items = append(items, it)
	}
	sort.Strings(items)
	return items
}
