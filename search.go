package photovec

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lensmark/photovec/ann"
)

type searchOptions struct {
	useFast bool
	hint    ann.Kind
	subset  *roaring.Bitmap
}

// SearchOption configures one Search or SearchLike call.
type SearchOption func(*searchOptions)

// WithFast asks for an accelerated backend. kind may name a specific backend
// or ann.KindAuto to pick the best built one. Requesting a backend that is
// not available or not built never fails: the search degrades to exact and
// reports it through Meta.Fallback.
func WithFast(kind ann.Kind) SearchOption {
	return func(o *searchOptions) {
		o.useFast = true
		if kind == "" {
			kind = ann.KindAuto
		}
		o.hint = kind
	}
}

// WithExact explicitly opts out of acceleration. Unlike the default exact
// path, the opt-out is acknowledged with Meta.Fallback set.
func WithExact() SearchOption {
	return func(o *searchOptions) {
		o.useFast = true
		o.hint = ann.KindExact
	}
}

// WithSubset restricts the search to the given corpus rows.
func WithSubset(subset *roaring.Bitmap) SearchOption {
	return func(o *searchOptions) {
		o.subset = subset
	}
}

// Meta reports how a search was answered. Result correctness never depends
// on the backend; only recall does, so callers wanting to surface degraded
// searches must inspect Fallback rather than the results.
type Meta struct {
	// Backend is the path that produced the candidates: a backend kind,
	// or ann.KindExact for the exact scan.
	Backend ann.Kind `json:"backend"`
	// Fallback is true when the answered path differs from the requested
	// one, and for an explicit exact opt-out.
	Fallback bool `json:"fallback"`
	// Requested echoes the hint the caller gave, if any.
	Requested ann.Kind `json:"requested,omitempty"`
	// UseFast echoes whether acceleration was asked for at all.
	UseFast bool `json:"use_fast"`
}
