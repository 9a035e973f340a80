// Package access is the capability based authorization core.
//
// A principal's effective permissions are the union of the permission strings of its roles.
// For every (resource, operation) pair a registered Evaluator turns them into a Decision:
// Allow, Deny or AllowIf(filter), the filter being pushed into record queries so that list
// endpoints only ever load authorized rows.
package access

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

type Engine struct {
	registry *Registry
	records  record.Repository
	logger   core.Logger
}

// NewEngine returns an Engine using the DefaultRegistry when reg is nil.
// records is only read, to resolve relationships such as course membership.
func NewEngine(records record.Repository, logger core.Logger, reg ...*Registry) *Engine {
	e := &Engine{registry: DefaultRegistry(), records: records, logger: logger}
	if len(reg) > 0 && reg[0] != nil {
		e.registry = reg[0]
	}
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// Evaluate decides whether p may apply op to resource res.
// Anonymous principals, unknown pairs and relationship fetch failures are all denied.
func (e *Engine) Evaluate(ctx context.Context, p *Principal, res record.Resource, op Operation, target Target) Decision {
	if p.IsAnonymous() {
		return Denied
	}
	ev, ok := e.registry.Lookup(res, op)
	if !ok {
		return Denied
	}

	env := Env{
		Principal: p,
		Perms:     p.Permissions(),
		Resource:  res,
		Operation: op,
		Target:    target,
		Records:   e.records,
	}
	decision, err := ev.Evaluate(ctx, env)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn(fmt.Sprintf("access denied on error: %s %s", op, res), err, p)
		}
		return Denied
	}

	if target.RecordID != "" {
		decision = decision.Narrow(record.Eq(record.FieldID, target.RecordID))
	}
	if target.Existing != nil && decision.Effect() == EffectFilteredAllow {
		decision = Resolve(decision.Permits(*target.Existing))
	}
	return decision
}

// Can is Evaluate reduced to "is there any chance": true unless denied.
func (e *Engine) Can(ctx context.Context, p *Principal, res record.Resource, op Operation, target Target) bool {
	return !e.Evaluate(ctx, p, res, op, target).IsDenied()
}
