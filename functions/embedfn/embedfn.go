// Package embedfn implements a Map function that turns text-content
// messages into embedding-content messages by calling an OpenAI-compatible
// embeddings endpoint, with a content-addressed cache in front of it.
//
// Two cache backends are available. The default is an in-process LRU: fast,
// but cold on every restart and invisible to other processes. Setting
// Durable switches to a NATS JetStream key-value cache plus a per-message
// pending/generated/failed ledger, so cache warmth survives a restart and a
// failed embedding call degrades to "pending" (picked up later by
// embedding.Worker) instead of failing the message outright.
package embedfn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/pkg/cache"
	"github.com/c360/streamkit/pkg/embedding"
)

// Config configures the embedding Map function.
type Config struct {
	// BaseURL, Model, and APIKey configure the HTTP embedding service used
	// when Offline is false. Ignored when Offline is true.
	BaseURL string
	Model   string
	APIKey  string

	// Offline selects the dependency-free BM25 lexical embedder instead of
	// calling out to an HTTP service, for pipelines that must run without a
	// reachable embedding endpoint (tests, air-gapped deployments).
	Offline    bool
	Dimensions int

	// Durable replaces the in-process LRU cache with NATS JetStream key-value
	// buckets and enables pending-request bookkeeping. All three buckets are
	// required when set; CacheBucket typically shares embedding.NATSCache's
	// bucket across processes, while IndexBucket and DedupBucket back
	// embedding.EmbeddingStorage. Ignored when Offline is true.
	Durable     bool
	CacheBucket jetstream.KeyValue
	IndexBucket jetstream.KeyValue
	DedupBucket jetstream.KeyValue

	CacheCap int
	Logger   *slog.Logger
}

// Function embeds text-content messages, replacing their payload with the
// resulting vector. Non-text messages pass through unmodified — embedding
// is only meaningful for text.
type Function struct {
	embedder embedding.Embedder
	storage  *embedding.EmbeddingStorage // non-nil only in Durable mode
	logger   *slog.Logger
}

// New builds an embedding Map function backed by an HTTP embedding service
// (TEI, LocalAI, or OpenAI-compatible) fronted by either an in-process LRU
// cache or, in Durable mode, NATS JetStream key-value storage.
func New(cfg Config) (*Function, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Offline {
		embedder := embedding.NewBM25Embedder(embedding.BM25Config{Dimensions: cfg.Dimensions})
		return &Function{embedder: embedder, logger: logger}, nil
	}

	var embCache embedding.Cache
	var storage *embedding.EmbeddingStorage
	if cfg.Durable {
		if cfg.CacheBucket == nil || cfg.IndexBucket == nil || cfg.DedupBucket == nil {
			return nil, fmt.Errorf("embedfn: durable mode requires CacheBucket, IndexBucket, and DedupBucket")
		}
		embCache = embedding.NewNATSCache(cfg.CacheBucket)
		storage = embedding.NewEmbeddingStorage(cfg.IndexBucket, cfg.DedupBucket)
	} else {
		cacheCap := cfg.CacheCap
		if cacheCap <= 0 {
			cacheCap = 4096
		}
		lru, err := cache.NewLRU[[]float32](cacheCap)
		if err != nil {
			return nil, fmt.Errorf("embedfn: build cache: %w", err)
		}
		embCache = &cacheAdapter{lru: lru}
	}

	embedder, err := embedding.NewHTTPEmbedder(embedding.HTTPConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Cache:   embCache,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("embedfn: build embedder: %w", err)
	}

	return &Function{embedder: embedder, storage: storage, logger: logger}, nil
}

func (f *Function) Kind() function.Kind { return function.KindMap }

// Execute embeds every text message in the input and swaps its content for
// the resulting embedding vector; non-text messages are forwarded as-is. In
// Durable mode a failed embedding call does not fail the message: the
// request is recorded as pending and the message is forwarded tagged
// embedding_status=pending, for embedding.Worker to backfill later.
func (f *Function) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	for _, msg := range in.Messages() {
		if msg == nil {
			continue
		}
		text, isText := msg.Content().Text()
		if !isText {
			out.Add(msg)
			continue
		}

		vectors, err := f.embedder.Generate(ctx, []string{text})
		if err != nil {
			if f.storage == nil {
				return nil, fmt.Errorf("embedfn: generate: %w", err)
			}
			msgID := fmt.Sprintf("%d", msg.ID())
			if perr := f.storage.SavePending(ctx, msgID, embedding.ContentHash(text), text); perr != nil {
				return nil, fmt.Errorf("embedfn: generate: %w (pending save also failed: %v)", err, perr)
			}
			msg.SetMetadata("embedding_status", "pending")
			msg.AddTrace("embedfn:pending")
			out.Add(msg)
			continue
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embedfn: expected 1 embedding, got %d", len(vectors))
		}

		if f.storage != nil {
			msgID := fmt.Sprintf("%d", msg.ID())
			// SaveGenerated preserves content_hash from the prior record, so
			// a pending record must exist before it is called.
			if err := f.storage.SavePending(ctx, msgID, embedding.ContentHash(text), text); err != nil {
				f.logger.Warn("embedfn: durable pending record failed", "error", err)
			} else if err := f.storage.SaveGenerated(ctx, msgID, vectors[0], f.embedder.Model(), len(vectors[0])); err != nil {
				f.logger.Warn("embedfn: durable status record failed", "error", err)
			}
		}

		msg.SetContent(message.EmbeddingContent(vectors[0]))
		msg.AddTrace("embedfn")
		out.Add(msg)
	}
	return out, nil
}

// Close releases the underlying HTTP embedder.
func (f *Function) Close() error { return f.embedder.Close() }

// cacheAdapter satisfies embedding.Cache on top of the generic
// pkg/cache.Cache[[]float32], since the two interfaces differ only in
// whether a lookup miss is reported by bool or by error.
type cacheAdapter struct {
	lru cache.Cache[[]float32]
}

func (c *cacheAdapter) Get(_ context.Context, contentHash string) ([]float32, error) {
	v, ok := c.lru.Get(contentHash)
	if !ok {
		return nil, fmt.Errorf("embedfn: cache miss for %s", contentHash)
	}
	return v, nil
}

func (c *cacheAdapter) Put(_ context.Context, contentHash string, vector []float32) error {
	_, err := c.lru.Set(contentHash, vector)
	return err
}
