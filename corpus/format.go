package corpus

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Embeddings blob layout, little-endian:
//
//	[0:4]   magic "PVE1"
//	[4:6]   format version
//	[6:8]   reserved
//	[8:12]  dim
//	[12:16] rows
//	[16:20] CRC32 (IEEE) of the compressed payload
//	[20:]   zstd-compressed float32 matrix, row-major
var embeddingsMagic = [4]byte{'P', 'V', 'E', '1'}

const (
	embeddingsVersion    = uint16(1)
	embeddingsHeaderSize = 20
)

// Encoding runs with a single-threaded zstd encoder: saving an unchanged
// corpus twice must produce byte-identical output, and concurrent framing
// would make that dependent on scheduling.
var (
	blobEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	blobDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// encodeEmbeddings serializes the matrix portion of a State.
func encodeEmbeddings(s *State) []byte {
	raw := make([]byte, len(s.Vectors)*4)
	for i, f := range s.Vectors {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
	}
	payload := blobEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2+embeddingsHeaderSize))

	out := make([]byte, embeddingsHeaderSize+len(payload))
	copy(out[0:4], embeddingsMagic[:])
	binary.LittleEndian.PutUint16(out[4:6], embeddingsVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(s.Dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(s.Paths)))
	binary.LittleEndian.PutUint32(out[16:20], crc32.ChecksumIEEE(payload))
	copy(out[embeddingsHeaderSize:], payload)
	return out
}

// decodeEmbeddings parses an embeddings blob and fills Dim/Vectors of dst.
// rows must match len(dst.Paths); any mismatch is reported as an error so the
// caller can reset to an empty corpus.
func decodeEmbeddings(data []byte, dst *State) error {
	if len(data) < embeddingsHeaderSize {
		return fmt.Errorf("embeddings blob truncated: %d bytes", len(data))
	}
	if [4]byte(data[0:4]) != embeddingsMagic {
		return fmt.Errorf("embeddings blob has bad magic %q", data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != embeddingsVersion {
		return fmt.Errorf("unsupported embeddings format version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	rows := int(binary.LittleEndian.Uint32(data[12:16]))
	sum := binary.LittleEndian.Uint32(data[16:20])

	payload := data[embeddingsHeaderSize:]
	if crc32.ChecksumIEEE(payload) != sum {
		return fmt.Errorf("embeddings blob checksum mismatch")
	}
	if rows != len(dst.Paths) {
		return fmt.Errorf("embeddings blob holds %d rows for %d paths", rows, len(dst.Paths))
	}

	raw, err := blobDecoder.DecodeAll(payload, nil)
	if err != nil {
		return fmt.Errorf("decompress embeddings blob: %w", err)
	}
	if len(raw) != rows*dim*4 {
		return fmt.Errorf("embeddings payload is %d bytes, want %d", len(raw), rows*dim*4)
	}

	vecs := make([]float32, rows*dim)
	for i := range vecs {
		vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	dst.Dim = dim
	dst.Vectors = vecs
	return nil
}
