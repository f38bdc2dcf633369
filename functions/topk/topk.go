// Package topk implements a TopK function that ranks embedding messages by
// cosine similarity to a reference vector.
package topk

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/pkg/cache"
	"github.com/c360/streamkit/pkg/embedding"
)

const referenceCacheKey = "reference"

// ReferenceProvider loads the vector a TopK ranks messages against. It is
// called again once the previously loaded vector's entry in the reference
// cache expires, so a query embedding recomputed on a schedule (rather than
// fixed at graph-build time) can drift the ranking without rebuilding the
// operator.
type ReferenceProvider func(ctx context.Context) ([]float32, error)

// Config configures the similarity ranking.
type Config struct {
	// Reference is the vector every message is scored against. Ignored if
	// ReferenceProvider is set.
	Reference []float32

	// ReferenceProvider, if set, loads the reference vector instead of
	// using a fixed Reference. The loaded vector is held in a TTL cache
	// (ReferenceTTL, default 5m) so a hot Score path doesn't call the
	// provider on every message, only once per expiry.
	ReferenceProvider ReferenceProvider
	ReferenceTTL      time.Duration

	// K is the number of top-scoring messages the owning operator retains.
	K int
}

// Function scores embedding-content messages by cosine similarity to a
// reference vector. Non-embedding messages score 0, so they sink to the
// bottom of the ranking rather than aborting the graph.
type Function struct {
	cfg      Config
	refCache cache.Cache[[]float32]
}

// New builds a similarity-ranking TopK function.
func New(cfg Config) (*Function, error) {
	if cfg.K <= 0 {
		return nil, fmt.Errorf("topk: K must be positive, got %d", cfg.K)
	}
	if cfg.ReferenceProvider == nil && len(cfg.Reference) == 0 {
		return nil, fmt.Errorf("topk: reference vector must not be empty")
	}

	f := &Function{cfg: cfg}
	if cfg.ReferenceProvider != nil {
		ttl := cfg.ReferenceTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		refCache, err := cache.NewTTL[[]float32](context.Background(), ttl, ttl/2)
		if err != nil {
			return nil, fmt.Errorf("topk: build reference cache: %w", err)
		}
		f.refCache = refCache
	}
	return f, nil
}

func (f *Function) Kind() function.Kind { return function.KindTopK }

// Score returns the cosine similarity between the message's embedding and
// the reference vector.
func (f *Function) Score(ctx context.Context, msg *message.Message) (float64, error) {
	vec, ok := msg.Content().Vector()
	if !ok {
		return 0, nil
	}
	ref, err := f.reference(ctx)
	if err != nil {
		return 0, fmt.Errorf("topk: load reference vector: %w", err)
	}
	return embedding.CosineSimilarity(vec, ref), nil
}

func (f *Function) reference(ctx context.Context) ([]float32, error) {
	if f.refCache == nil {
		return f.cfg.Reference, nil
	}
	if ref, ok := f.refCache.Get(referenceCacheKey); ok {
		return ref, nil
	}
	ref, err := f.cfg.ReferenceProvider(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := f.refCache.Set(referenceCacheKey, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

func (f *Function) K() int { return f.cfg.K }

// Close releases the reference cache's background cleanup goroutine. A
// no-op when the function was built with a fixed Reference rather than a
// ReferenceProvider.
func (f *Function) Close() error {
	if f.refCache == nil {
		return nil
	}
	return f.refCache.Close()
}
