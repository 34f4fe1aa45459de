package ann

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
)

// Factory constructs a backend bound to a blob store and codec.
type Factory func(blobs blobstore.Store, c codec.Codec) Backend

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Factory)
)

// Register makes a backend factory available under the given kind. Backend
// packages call this from init; registering a kind twice panics.
func Register(kind Kind, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("ann: Register factory is nil")
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("ann: Register called twice for kind %q", kind))
	}
	registry[kind] = factory
}

// New constructs a backend of the given kind, or an error if no factory is
// registered for it.
func New(kind Kind, blobs blobstore.Store, c codec.Codec) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ann: %w: %q (forgotten import?)", ErrUnknownKind, kind)
	}
	return factory(blobs, c), nil
}

// Registered reports whether a factory exists for the kind.
func Registered(kind Kind) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
