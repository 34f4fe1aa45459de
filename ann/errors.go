package ann

import "errors"

var (
	// ErrUnknownKind is returned when no backend factory is registered
	// for a requested kind.
	ErrUnknownKind = errors.New("unknown backend kind")

	// ErrNotBuilt is returned by Candidates when the backend's sidecar
	// does not exist yet.
	ErrNotBuilt = errors.New("index not built")

	// ErrDimMismatch is returned when a query vector's dimension does not
	// match the built index.
	ErrDimMismatch = errors.New("query dimension mismatch")
)
