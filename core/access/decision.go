package access

import (
	"encoding/json"

	"github.com/trezcool/academia/core/record"
)

type Effect int

const (
	EffectDeny Effect = iota
	EffectAllow
	EffectFilteredAllow
)

func (e Effect) String() string {
	switch e {
	case EffectAllow:
		return "allow"
	case EffectFilteredAllow:
		return "allow_if"
	}
	return "deny"
}

// Decision is the outcome of an access evaluation: Deny, Allow or AllowIf(filter).
type Decision struct {
	effect Effect
	filter record.Filter
}

var (
	Denied  = Decision{effect: EffectDeny}
	Allowed = Decision{effect: EffectAllow}
)

// AllowIf grants access to the records matching filter. A filter without clauses is a Deny.
func AllowIf(filter record.Filter) Decision {
	if filter.IsEmpty() {
		return Denied
	}
	return Decision{effect: EffectFilteredAllow, filter: filter}
}

// Resolve turns a boolean into Allowed or Denied.
func Resolve(ok bool) Decision {
	if ok {
		return Allowed
	}
	return Denied
}

func (d Decision) Effect() Effect  { return d.effect }
func (d Decision) IsDenied() bool  { return d.effect == EffectDeny }
func (d Decision) IsAllowed() bool { return d.effect == EffectAllow }

// Filter is the restriction to push into a repository query: nil when everything is allowed,
// a filter matching nothing when denied.
func (d Decision) Filter() *record.Filter {
	switch d.effect {
	case EffectAllow:
		return nil
	case EffectFilteredAllow:
		f := d.filter
		return &f
	}
	return &record.Filter{}
}

// Permits tests a concrete record against the decision.
func (d Decision) Permits(rec record.Record) bool {
	switch d.effect {
	case EffectAllow:
		return true
	case EffectFilteredAllow:
		return d.filter.Matches(rec)
	}
	return false
}

// Narrow restricts a filtered decision with one more condition.
func (d Decision) Narrow(cond record.Condition) Decision {
	if d.effect != EffectFilteredAllow {
		return d
	}
	return AllowIf(d.filter.Narrow(cond))
}

func (d Decision) String() string {
	if d.effect == EffectFilteredAllow {
		return d.effect.String() + "(" + d.filter.String() + ")"
	}
	return d.effect.String()
}

func (d Decision) MarshalJSON() ([]byte, error) {
	out := struct {
		Effect string         `json:"effect"`
		Filter *record.Filter `json:"filter,omitempty"`
	}{Effect: d.effect.String()}
	if d.effect == EffectFilteredAllow {
		out.Filter = d.Filter()
	}
	return json.Marshal(out)
}
