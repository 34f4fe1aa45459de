package ann

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/lensmark/photovec/blobstore"
	"github.com/lensmark/photovec/codec"
)

// WriteSidecar persists a backend's serialized index plus its metadata
// record. The payload is lz4-framed; metadata is written second so a crash
// between the two writes leaves the backend unbuilt rather than mismatched.
func WriteSidecar(ctx context.Context, blobs blobstore.Store, c codec.Codec, kind Kind, meta any, payload []byte) error {
	if c == nil {
		c = codec.Default
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return fmt.Errorf("ann: compress %s sidecar: %w", kind, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("ann: compress %s sidecar: %w", kind, err)
	}
	if err := blobs.Create(ctx, BlobName(kind), buf.Bytes()); err != nil {
		return fmt.Errorf("ann: write %s index blob: %w", kind, err)
	}

	data, err := c.Marshal(meta)
	if err != nil {
		return fmt.Errorf("ann: marshal %s metadata: %w", kind, err)
	}
	if err := blobs.Create(ctx, MetaName(kind), data); err != nil {
		return fmt.Errorf("ann: write %s metadata: %w", kind, err)
	}
	return nil
}

// ReadSidecar loads and decompresses a backend's index blob, decoding its
// metadata record into metaOut when non-nil. A missing sidecar returns
// blobstore.ErrNotFound.
func ReadSidecar(ctx context.Context, blobs blobstore.Store, c codec.Codec, kind Kind, metaOut any) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	if metaOut != nil {
		data, err := blobs.Open(ctx, MetaName(kind))
		if err != nil {
			return nil, err
		}
		if err := unmarshalMeta(c, data, metaOut); err != nil {
			return nil, fmt.Errorf("ann: parse %s metadata: %w", kind, err)
		}
	}

	blob, err := blobs.Open(ctx, BlobName(kind))
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(lz4.NewReader(bytes.NewReader(blob)))
	if err != nil {
		return nil, fmt.Errorf("ann: decompress %s index blob: %w", kind, err)
	}
	return payload, nil
}

// unmarshalMeta decodes a metadata record, switching to the codec the record
// names for itself when that differs from the configured one.
func unmarshalMeta(c codec.Codec, data []byte, v any) error {
	var probe struct {
		Codec string `json:"codec"`
	}
	if err := c.Unmarshal(data, &probe); err == nil && probe.Codec != "" && probe.Codec != c.Name() {
		if named, ok := codec.ByName(probe.Codec); ok {
			c = named
		}
	}
	return c.Unmarshal(data, v)
}

// ProbeSidecar checks whether a backend is built and returns its common
// metadata. A backend counts as built only when both sidecar files exist and
// the metadata parses; a clean "not built" reports ok=false with a nil error.
func ProbeSidecar(ctx context.Context, blobs blobstore.Store, c codec.Codec, kind Kind) (Metadata, bool, error) {
	if c == nil {
		c = codec.Default
	}
	data, err := blobs.Open(ctx, MetaName(kind))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, err
	}
	var meta Metadata
	if err := unmarshalMeta(c, data, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("ann: parse %s metadata: %w", kind, err)
	}

	names, err := blobs.List(ctx, BlobName(kind))
	if err != nil {
		return Metadata{}, false, err
	}
	for _, name := range names {
		if name == BlobName(kind) {
			return meta, true, nil
		}
	}
	return Metadata{}, false, nil
}
