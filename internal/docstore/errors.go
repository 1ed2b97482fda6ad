package docstore

import "errors"

var (
	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrUnavailable wraps transport and service failures from the
	// underlying store.
	ErrUnavailable = errors.New("docstore: store unavailable")
)
