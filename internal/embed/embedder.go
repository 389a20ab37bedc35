// Package embed turns claim text into fixed-dimension dense vectors.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Embedder is the embedding gateway. Implementations must be safe for
// concurrent use; the pipeline shares one instance across requests.
type Embedder interface {
	// Embed returns a fixed-length vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length this embedder produces
	Dimension() int
}

// cacheKey derives a stable memo key from the model and text
func cacheKey(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return "verimem:v1:" + hex.EncodeToString(hash[:])
}
