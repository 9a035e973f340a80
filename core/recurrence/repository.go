package recurrence

import (
	"context"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

// Occurrence is one materialized session of a rule.
type Occurrence struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"recurrence_rule_id"`
	Course    string    `json:"course"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// OccurrenceOf materializes rule on date.
func OccurrenceOf(rule Rule, date time.Time) Occurrence {
	return Occurrence{
		RuleID:    rule.ID,
		Course:    rule.Course,
		Title:     rule.Title,
		Date:      date,
		StartTime: rule.First.StartTime,
		EndTime:   rule.First.EndTime,
		CreatedBy: rule.CreatedBy,
	}
}

// Record exposes the occurrence as a course session to access checks.
func (o Occurrence) Record() record.Record {
	return record.Record{
		ID:        o.ID,
		Type:      record.Sessions,
		CreatedBy: o.CreatedBy,
		Course:    o.Course,
		CreatedAt: o.CreatedAt,
	}
}

// OccurrenceWriter is what Reconcile needs from storage.
type OccurrenceWriter interface {
	// DeleteOccurrencesFrom deletes the occurrences of ruleID dated on or after from.
	DeleteOccurrencesFrom(ctx context.Context, ruleID string, from time.Time, exec ...core.DBExecutor) (int, error)
	CreateOccurrences(ctx context.Context, occs []Occurrence, exec ...core.DBExecutor) ([]Occurrence, error)
}

type Repository interface {
	OccurrenceWriter

	CreateRule(ctx context.Context, rule Rule, exec ...core.DBExecutor) (Rule, error)
	GetRule(ctx context.Context, id string, exec ...core.DBExecutor) (Rule, error)
	// LockRule is GetRule holding the row until the transaction ends.
	LockRule(ctx context.Context, id string, exec ...core.DBExecutor) (Rule, error)
	QueryRules(ctx context.Context, filter *record.Filter, exec ...core.DBExecutor) ([]Rule, error)
	UpdateRule(ctx context.Context, rule Rule, exec ...core.DBExecutor) (Rule, error)
	DeleteRule(ctx context.Context, id string, exec ...core.DBExecutor) error
	QueryOccurrences(ctx context.Context, ruleID string, exec ...core.DBExecutor) ([]Occurrence, error)
}
