// Package store abstracts the document store backing the attendance
// service. Collections are schema-less; queries are predicate lists the
// way mobile clients issue them against the hosted store.
package store

import (
	"context"
	"errors"
)

// Predicate operators supported by every backend.
const (
	OpEq            = "=="
	OpLt            = "<"
	OpLte           = "<="
	OpGt            = ">"
	OpGte           = ">="
	OpArrayContains = "array-contains"
	OpIn            = "in"
)

// Predicate is a single field filter.
type Predicate struct {
	Field string
	Op    string
	Value any
}

// Query describes one round-trip against a collection.
type Query struct {
	Collection string
	Predicates []Predicate
	OrderBy    string
	Descending bool
	Limit      int
}

// Document is a raw record: an id plus its fields.
type Document struct {
	ID   string
	Data map[string]any
}

// Update rewrites a single field of a single document.
type Update struct {
	Collection string
	ID         string
	Field      string
	Value      any
}

var (
	// ErrNotFound means the identified document does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps transport and query failures.
	ErrUnavailable = errors.New("store: unavailable")
)

// DocStore is the persistence interface every component takes by
// injection. Implementations: Firestore, a Postgres JSONB table, and an
// in-memory fake for tests.
type DocStore interface {
	Query(ctx context.Context, q Query) ([]Document, error)
	GetByID(ctx context.Context, collection, id string) (Document, error)
	Put(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	BatchUpdate(ctx context.Context, updates []Update) error
}

// Eq is shorthand for an equality predicate.
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// ArrayContains is shorthand for an array-membership predicate.
func ArrayContains(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpArrayContains, Value: value}
}
