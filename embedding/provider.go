// Package embedding defines the provider boundary for semantic embeddings.
//
// The index core consumes providers but never implements one: a provider may
// be a local ONNX/CLIP runtime, a remote API, or a test double. Vectors
// returned by a provider are re-normalized by the corpus store on ingestion,
// so providers are free to return unnormalized output.
package embedding

import "context"

// Provider produces embedding vectors for images and free-text queries.
//
// EmbedImages returns one row per input path, in input order. A row with zero
// L2 norm marks an embedding failure for that item; the caller skips it
// rather than treating the batch as failed.
type Provider interface {
	// EmbedImages embeds the images at the given paths, processing at most
	// batchSize items per underlying model call.
	EmbedImages(ctx context.Context, paths []string, batchSize int) ([][]float32, error)

	// EmbedText embeds a free-text query into the same vector space.
	EmbedText(ctx context.Context, query string) ([]float32, error)
}

// IsZero reports whether v is empty or has zero L2 norm, the provider-side
// signal for a failed embedding.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
