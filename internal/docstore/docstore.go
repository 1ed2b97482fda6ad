// Package docstore abstracts the remote document database behind a small
// injected interface: single-document reads and writes, transactional
// compare-and-write updates, equality queries, atomic batch writes, and
// push-style snapshot subscriptions. The production implementation is
// Cloud Firestore; an in-memory implementation backs the unit tests.
package docstore

import "context"

// Doc is a decoded document payload. Values follow the store's native
// mapping (strings, bools, float64/int64 numbers, time.Time, []any, nested
// Doc/map[string]any, nil).
type Doc = map[string]any

// ServerTime is the sentinel assigned to a field whose value must be
// stamped by the store's server clock at write time.
var ServerTime = serverTime{}

type serverTime struct{}

// Snapshot is the state of one document at a point in the store's
// per-document write order.
type Snapshot struct {
	Collection string
	ID         string
	Exists     bool
	Data       Doc
}

// Filter is one equality predicate of a query. Op is the store's operator
// syntax; only "==" is required by this codebase.
type Filter struct {
	Path  string
	Op    string
	Value any
}

// WriteOp is one element of an atomic batch write.
type WriteOp struct {
	Collection string
	ID         string
	Patch      Doc
	Merge      bool
}

// UpdateFunc inspects the current snapshot inside a transaction and returns
// the merge patch to apply. Returning an error aborts the transaction and
// the error is surfaced to the caller unchanged, which is how transition
// guards reject stale writes.
type UpdateFunc func(Snapshot) (Doc, error)

type Store interface {
	// Read fetches a single document. A missing document is ErrNotFound.
	Read(ctx context.Context, collection, id string) (Snapshot, error)

	// Write applies patch to the document, creating it if absent. With
	// merge=false the document is replaced wholesale.
	Write(ctx context.Context, collection, id string, patch Doc, merge bool) error

	// Update runs fn against the current document state and applies the
	// returned patch atomically (compare-and-write). A concurrent writer
	// causes fn to re-run against the fresh state.
	Update(ctx context.Context, collection, id string, fn UpdateFunc) error

	// Query returns every document of the collection matching all filters.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)

	// BatchWrite applies all ops atomically: either every op is applied or
	// none is.
	BatchWrite(ctx context.Context, ops []WriteOp) error

	// Subscribe delivers the current snapshot and every subsequent write of
	// the document, in write order, until the returned stop function is
	// called or ctx is cancelled. The channel is closed on teardown.
	Subscribe(ctx context.Context, collection, id string) (<-chan Snapshot, func(), error)
}
