package store

import (
	"context"
	"fmt"
)

// ErrorClass is the closed set of store failures the pipeline reasons
// about. Anything outside these four is ClassOther and is never retried.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassUnknownColumn
	ClassNotNull
	ClassUnique
	ClassForeignKey
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUnknownColumn:
		return "unknown_column"
	case ClassNotNull:
		return "not_null_violation"
	case ClassUnique:
		return "unique_violation"
	case ClassForeignKey:
		return "foreign_key_violation"
	default:
		return "other"
	}
}

// Error is a classified store failure. Column is set for unknown-column
// and not-null classes; Constraint for unique and foreign-key classes;
// RefTable and RefValue for foreign-key violations (the legacy table the
// constraint points at, and the key value that was missing there).
type Error struct {
	Class      ErrorClass
	Column     string
	Constraint string
	RefTable   string
	RefValue   string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s (column=%q constraint=%q table=%q): %v",
		e.Class, e.Column, e.Constraint, e.RefTable, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Row is a single result row keyed by column name.
type Row map[string]any

// Client is the minimal relational surface the fulfillment-side services
// are written against. Implementations must return *Error for failures
// that match one of the four classified conditions.
type Client interface {
	Select(ctx context.Context, table string, where Row, orderBy string, limit int) ([]Row, error)
	Insert(ctx context.Context, table string, payload Row) (Row, error)
	Update(ctx context.Context, table string, id any, payload Row) (Row, error)
	Delete(ctx context.Context, table string, id any) error
}
