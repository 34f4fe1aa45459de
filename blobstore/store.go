// Package blobstore abstracts storage of index artifacts.
//
// Index artifacts are small, immutable-once-written files: the paths record,
// the embeddings blob, and per-backend sidecars. Stores therefore expose a
// whole-blob surface rather than streaming handles. The local store is the
// canonical home of an index directory; the s3 and minio subpackages provide
// the same surface for off-site mirrors.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
// The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store reads and writes named blobs.
type Store interface {
	// Open reads the blob with the given name in full.
	Open(ctx context.Context, name string) ([]byte, error)

	// Create writes a blob, replacing any existing blob of the same name.
	// The write is atomic where the backing storage allows it: readers
	// never observe a partially written blob.
	Create(ctx context.Context, name string, data []byte) error

	// List returns the names of all blobs starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

// Copy copies every blob with the given prefix from src to dst.
func Copy(ctx context.Context, dst, src Store, prefix string) error {
	names, err := src.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := src.Open(ctx, name)
		if err != nil {
			return err
		}
		if err := dst.Create(ctx, name, data); err != nil {
			return err
		}
	}
	return nil
}
