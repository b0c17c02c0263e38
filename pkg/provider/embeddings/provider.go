// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. The transcript
// archive uses these vectors to index finished conversation turns so that
// past sessions can be searched semantically rather than by substring.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different providers
// or models must not be mixed in one similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text
	// is passed to the backend verbatim; any model-specific prefixing is the
	// caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one backend call.
	// The returned slice has the same length and order as texts. On error the
	// entire result is nil, partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier, for logging and
	// for checking that an index and a query use the same space.
	ModelID() string
}
