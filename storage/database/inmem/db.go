// Package inmemdb stores everything in process memory. Used by tests and the "inmem" database engine.
package inmemdb

import (
	"sync"

	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/recurrence"
)

type (
	DB struct {
		record     *recordTable
		role       *roleTable
		recurrence *recurrenceTable
	}

	recordTable struct {
		table map[record.Resource]map[string]*record.Record
		mutex sync.RWMutex
	}

	roleTable struct {
		table map[string]*access.Role // by IAM name
		mutex sync.RWMutex
	}

	recurrenceTable struct {
		rules       map[string]*recurrence.Rule
		occurrences map[string]*recurrence.Occurrence
		mutex       sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		record:     &recordTable{table: make(map[record.Resource]map[string]*record.Record)},
		role:       &roleTable{table: make(map[string]*access.Role)},
		recurrence: &recurrenceTable{rules: make(map[string]*recurrence.Rule), occurrences: make(map[string]*recurrence.Occurrence)},
	}
}
