package core

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

// Transact runs fn inside a transaction, committing on success and rolling back on error or panic.
// A nil db runs fn without a transaction (in-memory storage).
func Transact(ctx context.Context, db DB, fn func(exec DBExecutor) error) (err error) {
	if db == nil {
		return fn(nil)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

// Executors drops nil executors so that repositories fall back to their own.
func Executors(exec DBExecutor) []DBExecutor {
	if exec == nil {
		return nil
	}
	return []DBExecutor{exec}
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrderings parses "field,-other" into orderings, keeping only the allowed fields.
func ParseOrderings(raw string, allowed ...string) []DBOrdering {
	if raw == "" {
		return nil
	}
	var ords []DBOrdering
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		for _, a := range allowed {
			if a == field {
				ords = append(ords, DBOrdering{Field: field, Ascending: !descending})
				break
			}
		}
	}
	return ords
}
