// Package rowstore defines the row-oriented persistence port the scheduling
// core writes through, along with memory, DynamoDB and Postgres backends.
//
// Rows are flat string maps, the shape of the clinic's sheet-style records.
// The core never mutates a row in place: it re-reads, checks status, and
// writes back through UpdateIf so a concurrent writer loses cleanly instead
// of being silently overwritten.
package rowstore

import (
	"context"
	"errors"
)

// Row is a single record keyed by column name.
type Row map[string]string

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

var (
	// ErrRowNotFound indicates the requested row does not exist.
	ErrRowNotFound = errors.New("rowstore: row not found")
	// ErrConditionFailed indicates a conditional write lost to a concurrent
	// update: the row's current value no longer matches what the caller read.
	ErrConditionFailed = errors.New("rowstore: condition failed")
)

// Store is the persistence port for sheet-style row collections.
//
// Each table has a designated key field (row_id for appointments, patient_id
// for patients); Update, UpdateIf and Append address rows by that key.
type Store interface {
	// ScanAll returns every row of a table in insertion order.
	ScanAll(ctx context.Context, table string) ([]Row, error)
	// FindByKey returns the first row whose field equals value, or
	// ErrRowNotFound.
	FindByKey(ctx context.Context, table, field, value string) (Row, error)
	// Update overwrites the row with the given key unconditionally.
	Update(ctx context.Context, table, key string, row Row) error
	// UpdateIf overwrites the row only while condField still equals
	// condValue; otherwise it returns ErrConditionFailed and leaves the row
	// untouched.
	UpdateIf(ctx context.Context, table, key string, row Row, condField, condValue string) error
	// Append inserts a new row. A key collision returns ErrConditionFailed.
	Append(ctx context.Context, table string, row Row) error
}
