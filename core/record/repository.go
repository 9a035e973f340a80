package record

import (
	"context"
	"errors"

	"github.com/trezcool/academia/core"
)

var ErrNotFound = errors.New("record not found")

type FindOptions struct {
	Limit    int
	Offset   int
	Ordering []core.DBOrdering
}

// Repository stores records of every resource type.
// A nil filter means no restriction; a filter without clauses matches nothing.
type Repository interface {
	FindByID(ctx context.Context, rtype Resource, id string, exec ...core.DBExecutor) (Record, error)
	Find(ctx context.Context, rtype Resource, filter *Filter, opts FindOptions, exec ...core.DBExecutor) ([]Record, error)
	Create(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
	// Update replaces the mutable fields of every matching record with the ones of rec.
	Update(ctx context.Context, rtype Resource, filter *Filter, rec Record, exec ...core.DBExecutor) (int, error)
	Delete(ctx context.Context, rtype Resource, filter *Filter, exec ...core.DBExecutor) (int, error)
}

// ByID is the filter selecting a single record.
func ByID(id string) *Filter {
	f := Where(Eq(FieldID, id))
	return &f
}
