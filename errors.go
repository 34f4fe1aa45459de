package photovec

import "errors"

var (
	// ErrNotIndexed is returned by SearchLike when the given path has no
	// stored embedding in the corpus.
	ErrNotIndexed = errors.New("photovec: path not indexed")

	// ErrUnavailable is returned by Build when the requested backend kind
	// was not resolved at construction.
	ErrUnavailable = errors.New("photovec: backend unavailable")
)
