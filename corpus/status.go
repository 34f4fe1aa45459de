package corpus

import (
	"context"
	"errors"
	"time"

	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
)

// IndexStatusBlobName is the optional progress file maintained by callers
// driving long upserts. The core never reads it for its own decisions.
const IndexStatusBlobName = "index_status.json"

// IndexStatus is the persisted progress record for a long-running upsert.
type IndexStatus struct {
	Phase     string    `json:"phase"` // e.g. "scanning", "embedding", "done"
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	NewCount  int       `json:"new"`
	Updated   int       `json:"updated"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WriteIndexStatus writes the progress record to the index directory.
func WriteIndexStatus(ctx context.Context, blobs blobstore.Store, c codec.Codec, st IndexStatus) error {
	if c == nil {
		c = codec.Default
	}
	data, err := c.Marshal(st)
	if err != nil {
		return err
	}
	return blobs.Create(ctx, IndexStatusBlobName, data)
}

// ReadIndexStatus loads the progress record. A missing file returns a zero
// status and ok=false.
func ReadIndexStatus(ctx context.Context, blobs blobstore.Store, c codec.Codec) (IndexStatus, bool, error) {
	if c == nil {
		c = codec.Default
	}
	data, err := blobs.Open(ctx, IndexStatusBlobName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return IndexStatus{}, false, nil
		}
		return IndexStatus{}, false, err
	}
	var st IndexStatus
	if err := c.Unmarshal(data, &st); err != nil {
		return IndexStatus{}, false, err
	}
	return st, true, nil
}
