// Package main implements the streamkit entry point: it loads an engine
// configuration, wires the default streaming pipeline, and runs it to
// completion (or forever, for a live source) with Prometheus metrics
// exposed over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/streamkit/builder"
	"github.com/c360/streamkit/config"
	"github.com/c360/streamkit/engine"
	"github.com/c360/streamkit/functions/embedfn"
	"github.com/c360/streamkit/functions/natssource"
	"github.com/c360/streamkit/functions/ratelimit"
	"github.com/c360/streamkit/functions/topk"
	"github.com/c360/streamkit/functions/wssink"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/natsclient"
	"github.com/c360/streamkit/pkg/embedding"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamkit"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("streamkit failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	raw, err := os.ReadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	engineCfg, err := config.Load(raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	streamCfg, err := engineCfg.ToEngineConfig()
	if err != nil {
		return fmt.Errorf("build engine config: %w", err)
	}

	metrics := metric.NewMetricsRegistry()
	eng := engine.New(streamCfg, engine.WithLogger(logger), engine.WithMetricsRegistry(metrics))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopMetricsServer := startMetricsServer(cliCfg.MetricsPort, metrics, logger)
	defer stopMetricsServer(ctx)

	graphID, stopEmbeddingBackfill, err := buildDefaultPipeline(ctx, eng, logger, metrics, cliCfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	if stopEmbeddingBackfill != nil {
		defer stopEmbeddingBackfill()
	}

	logger.Info("starting pipeline", "graph_id", graphID)
	if err := eng.Execute(ctx, graphID); err != nil {
		return fmt.Errorf("execute pipeline: %w", err)
	}
	logger.Info("pipeline finished", "throughput_msg_per_sec", eng.Throughput())
	return nil
}

// buildDefaultPipeline wires the reference pipeline: a NATS source feeding a
// rate limiter, an embedding step, a similarity ranker, and a WebSocket
// broadcast sink. Real deployments are expected to assemble their own graph
// with the builder package directly; this is the shape exercised by the
// binary's default configuration.
//
// When cliCfg.DurableEmbed is set, the embedding step's cache and pending
// bookkeeping move from an in-process LRU into NATS JetStream KV buckets,
// and a background embedding.Worker is started to backfill any embedding
// requests the step could not complete synchronously. The returned stop
// func shuts that worker down and must be called during graceful shutdown;
// it is nil when durable embeddings are disabled.
func buildDefaultPipeline(ctx context.Context, eng *engine.StreamEngine, logger *slog.Logger, metrics *metric.MetricsRegistry, cliCfg *CLIConfig) (uint64, func(), error) {
	source := natssource.New(natssource.Config{
		URL:     cliCfg.NATSUrl,
		Subject: "streamkit.ingest",
		Logger:  logger,
	})
	limiter := ratelimit.New(ratelimit.Config{PerSecond: 500, Burst: 50})

	embedCfg := embedfn.Config{
		BaseURL: "http://localhost:8082",
		Model:   "all-MiniLM-L6-v2",
		Logger:  logger,
	}
	var stopBackfill func()
	if cliCfg.DurableEmbed {
		durableCfg, stop, err := setupDurableEmbedding(ctx, cliCfg.NATSUrl, embedCfg.BaseURL, embedCfg.Model, metrics, logger)
		if err != nil {
			return 0, nil, fmt.Errorf("durable embeddings: %w", err)
		}
		embedCfg.Durable = true
		embedCfg.CacheBucket = durableCfg.CacheBucket
		embedCfg.IndexBucket = durableCfg.IndexBucket
		embedCfg.DedupBucket = durableCfg.DedupBucket
		stopBackfill = stop
	}

	embedder, err := embedfn.New(embedCfg)
	if err != nil {
		return 0, stopBackfill, err
	}

	ranker, err := topk.New(topk.Config{Reference: make([]float32, 384), K: 10})
	if err != nil {
		return 0, stopBackfill, err
	}

	sink := wssink.New(wssink.Config{Addr: ":8090", Path: "/ws", Logger: logger})

	b := builder.New(eng, 256, logger).
		FromSource("ingest", source).
		Filter("throttle", limiter).
		Map("embed", embedder).
		TopK("rank", ranker).
		Sink("broadcast", sink)

	if err := b.Err(); err != nil {
		return 0, stopBackfill, err
	}
	graphID, err := eng.Submit(b.Graph())
	return graphID, stopBackfill, err
}

// durableEmbeddingBuckets holds the JetStream KV buckets a durable embedding
// step needs: a content-hash cache and the index/dedup pair backing
// pkg/embedding.EmbeddingStorage.
type durableEmbeddingBuckets struct {
	CacheBucket jetstream.KeyValue
	IndexBucket jetstream.KeyValue
	DedupBucket jetstream.KeyValue
}

// setupDurableEmbedding connects to NATS, provisions the three KV buckets a
// durable embedding step needs, and starts a background embedding.Worker
// that backfills any request the synchronous embedding call left pending.
// The returned stop func drains the worker and closes the client.
func setupDurableEmbedding(ctx context.Context, natsURL, embedBaseURL, embedModel string, metrics *metric.MetricsRegistry, logger *slog.Logger) (durableEmbeddingBuckets, func(), error) {
	client, err := natsclient.NewClient(natsURL, natsclient.WithMetrics(metrics))
	if err != nil {
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("build nats client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("connect: %w", err)
	}

	cacheBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "STREAMKIT_EMBED_CACHE"})
	if err != nil {
		_ = client.Close()
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("cache bucket: %w", err)
	}
	indexBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: embedding.EmbeddingIndexBucket})
	if err != nil {
		_ = client.Close()
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("index bucket: %w", err)
	}
	dedupBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: embedding.EmbeddingDedupBucket})
	if err != nil {
		_ = client.Close()
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("dedup bucket: %w", err)
	}

	backfillEmbedder, err := embedding.NewHTTPEmbedder(embedding.HTTPConfig{BaseURL: embedBaseURL, Model: embedModel, Logger: logger})
	if err != nil {
		_ = client.Close()
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("backfill embedder: %w", err)
	}
	storage := embedding.NewEmbeddingStorage(indexBucket, dedupBucket)
	worker := embedding.NewWorker(storage, backfillEmbedder, indexBucket, logger)
	if err := worker.Start(ctx); err != nil {
		_ = backfillEmbedder.Close()
		_ = client.Close()
		return durableEmbeddingBuckets{}, nil, fmt.Errorf("start backfill worker: %w", err)
	}

	stop := func() {
		if err := worker.Stop(); err != nil {
			logger.Warn("embedding backfill worker stop error", "error", err)
		}
		_ = backfillEmbedder.Close()
		_ = client.Close()
	}

	buckets := durableEmbeddingBuckets{CacheBucket: cacheBucket, IndexBucket: indexBucket, DedupBucket: dedupBucket}
	return buckets, stop, nil
}

func startMetricsServer(port int, registry *metric.MetricsRegistry, logger *slog.Logger) func(context.Context) {
	if port == 0 {
		return func(context.Context) {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	return func(ctx context.Context) {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting streamkit", "version", Version, "build_time", BuildTime, "config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}
