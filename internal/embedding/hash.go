package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/philippgille/chromem-go"
)

const DefaultHashDimension = 256

var tokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// NewHashFunc returns an offline bag-of-words embedding: every token is hashed
// into one of dim buckets. The last bucket is a constant bias so no vector is zero.
func NewHashFunc(dim int) chromem.EmbeddingFunc {
	if dim <= 1 {
		dim = DefaultHashDimension
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dim)
		for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[int(h.Sum32()%uint32(dim-1))]++
		}
		vec[dim-1] = 1
		return normalize(vec), nil
	}
}

// normalize scales v to unit length; chromem compares by dot product.
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
