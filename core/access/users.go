package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/record"
)

// usersEvaluator handles the users resource, whose permissions are scoped by the target's roles:
// "users:<op>:<iamName>". Writing a user requires a grant for every role that user holds.
// "users:<op>:self" lets a principal reach their own record whatever its roles.
type usersEvaluator struct{}

func (usersEvaluator) Evaluate(ctx context.Context, env Env) (Decision, error) {
	if env.Perms.Has(Permission(record.Users, env.Operation)) {
		return Allowed, nil
	}

	prefix := Permission(record.Users, env.Operation) + Separator
	self := env.Perms.Has(Permission(record.Users, env.Operation, SelfOnly))
	scoped := make(Set)
	for _, iam := range env.Perms.WithPrefix(prefix) {
		if Qualifier(iam) != SelfOnly {
			scoped.Add(iam)
		}
	}

	switch env.Operation {
	case Read:
		var filter record.Filter
		if self {
			filter = record.Or(filter, record.Where(record.Eq(record.FieldID, env.Principal.ID)))
		}
		for _, iam := range scoped.Slice() {
			filter = record.Or(filter, record.Where(record.Contains(record.FieldRoles, iam)))
		}
		return AllowIf(filter), nil

	case Create:
		if env.Target.Proposed == nil || len(scoped) == 0 {
			return Denied, nil
		}
		return Resolve(allScoped(scoped, env.Target.Proposed.Roles)), nil

	default: // Update, Delete
		targetID := env.Target.RecordID
		if targetID == "" && env.Target.Existing != nil {
			targetID = env.Target.Existing.ID
		}
		if targetID == "" {
			// "every role of the target" cannot be pushed into a query: only self survives
			if self {
				return AllowIf(record.Where(record.Eq(record.FieldID, env.Principal.ID))), nil
			}
			return Denied, nil
		}
		if self && targetID == env.Principal.ID {
			return Allowed, nil
		}
		if len(scoped) == 0 {
			return Denied, nil
		}

		existing := env.Target.Existing
		if existing == nil || existing.ID != targetID {
			if env.Records == nil {
				return Denied, errors.New("no record repository to resolve target roles")
			}
			rec, err := env.Records.FindByID(ctx, record.Users, targetID)
			if err != nil {
				return Denied, errors.Wrap(err, "finding target user")
			}
			existing = &rec
		}

		roles := existing.Roles
		if env.Operation == Update && env.Target.Proposed != nil && env.Target.Proposed.Roles != nil {
			roles = append(append([]string(nil), roles...), env.Target.Proposed.Roles...)
		}
		return Resolve(allScoped(scoped, roles)), nil
	}
}

func allScoped(scoped Set, roles []string) bool {
	for _, iam := range roles {
		if !scoped.Has(iam) {
			return false
		}
	}
	return true
}
