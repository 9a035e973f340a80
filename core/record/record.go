// Package record holds the generic resource record every domain entity is stored as,
// the declarative filter language used to scope queries and the repository contract.
package record

import (
	"time"
)

// Resource is a record type, e.g. "courses".
type Resource string

const (
	Users         Resource = "users"
	Roles         Resource = "roles"
	Courses       Resource = "courses"
	Assignments   Resource = "assignments"
	Submissions   Resource = "submissions"
	Grades        Resource = "grades"
	Media         Resource = "media"
	Sessions      Resource = "sessions"
	Recurrences   Resource = "recurrences"
	Lessons       Resource = "lessons"
	Announcements Resource = "announcements"
	Comments      Resource = "comments"
)

// AllResources lists every known resource type.
var AllResources = []Resource{
	Users, Roles, Courses, Assignments, Submissions, Grades,
	Media, Sessions, Recurrences, Lessons, Announcements, Comments,
}

func (r Resource) String() string { return string(r) }

// IsKnown reports whether r is one of AllResources.
func (r Resource) IsKnown() bool {
	for _, known := range AllResources {
		if r == known {
			return true
		}
	}
	return false
}

// Relationship fields usable in filters.
const (
	FieldID         = "id"
	FieldCreatedBy  = "created_by"
	FieldCourse     = "course"
	FieldAuthor     = "author"
	FieldGrader     = "grader"
	FieldMembers    = "members"
	FieldRoles      = "roles"
	FieldActiveRole = "active_role"
)

// SortableFields are the fields repositories accept in orderings.
var SortableFields = []string{FieldID, FieldCreatedBy, FieldCourse, "created_at", "updated_at"}

// Record is any domain entity: a course, an assignment, a user...
// Relationship fields are first class so that filters can be pushed down to storage;
// everything else lives in Data.
type Record struct {
	ID         string                 `json:"id"`
	Type       Resource               `json:"type"`
	CreatedBy  string                 `json:"created_by"`
	Course     string                 `json:"course,omitempty"`
	Author     string                 `json:"author,omitempty"`
	Grader     string                 `json:"grader,omitempty"`
	Members    []string               `json:"members,omitempty"`
	Roles      []string               `json:"roles,omitempty"`
	ActiveRole string                 `json:"active_role,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	CreatedAt  time.Time              `json:"created_at"` // UTC
	UpdatedAt  time.Time              `json:"updated_at"` // UTC
}

// Values returns the values held by a relationship field. Scalar fields yield at most one value.
func (r Record) Values(field string) ([]string, bool) {
	scalar := func(v string) ([]string, bool) {
		if v == "" {
			return nil, true
		}
		return []string{v}, true
	}

	switch field {
	case FieldID:
		return scalar(r.ID)
	case FieldCreatedBy:
		return scalar(r.CreatedBy)
	case FieldCourse:
		return scalar(r.Course)
	case FieldAuthor:
		return scalar(r.Author)
	case FieldGrader:
		return scalar(r.Grader)
	case FieldActiveRole:
		return scalar(r.ActiveRole)
	case FieldMembers:
		return r.Members, true
	case FieldRoles:
		return r.Roles, true
	}
	return nil, false
}

// HasMember reports whether id is one of the record's members.
func (r Record) HasMember(id string) bool {
	return contains(r.Members, id)
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	if r.Members != nil {
		c.Members = append([]string(nil), r.Members...)
	}
	if r.Roles != nil {
		c.Roles = append([]string(nil), r.Roles...)
	}
	if r.Data != nil {
		c.Data = make(map[string]interface{}, len(r.Data))
		for k, v := range r.Data {
			c.Data[k] = v
		}
	}
	return c
}

// Merge applies the mutable fields set on patch.
func (r Record) Merge(patch Record) Record {
	merged := r.Clone()
	if patch.Course != "" {
		merged.Course = patch.Course
	}
	if patch.Author != "" {
		merged.Author = patch.Author
	}
	if patch.Grader != "" {
		merged.Grader = patch.Grader
	}
	if patch.Members != nil {
		merged.Members = append([]string(nil), patch.Members...)
	}
	if patch.Roles != nil {
		merged.Roles = append([]string(nil), patch.Roles...)
	}
	if patch.ActiveRole != "" {
		merged.ActiveRole = patch.ActiveRole
	}
	if patch.Data != nil {
		if merged.Data == nil {
			merged.Data = make(map[string]interface{}, len(patch.Data))
		}
		for k, v := range patch.Data {
			merged.Data[k] = v
		}
	}
	return merged
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
