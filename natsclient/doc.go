// Package natsclient provides a NATS client with circuit-breaker protection,
// automatic reconnection, and JetStream/KV support, used by streamkit's
// NATS-backed functions and by its durable embedding backend.
//
// natsclient wraps the standard NATS Go client with a circuit breaker for
// failure protection, exponential backoff for reconnection, and context
// propagation throughout. It is the sole point of contact with a NATS
// server anywhere in this module — functions/natssource, functions/natssink,
// and cmd/streamkit's durable-embeddings setup all go through a
// natsclient.Client rather than the raw nats.go API.
//
// # Core features
//
// Circuit breaker: fails fast after a threshold of consecutive failures
// (default 5), then gradually tests the connection with exponential
// backoff instead of hammering a downed server.
//
// Connection lifecycle: Disconnected -> Connecting -> Connected ->
// Reconnecting -> Connected, with configurable callbacks for each
// transition.
//
// JetStream support: streams, consumers, and key-value buckets, all routed
// through the same circuit breaker as plain pub/sub.
//
// # Basic usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222")
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "streamkit.ingest", []byte("message data"))
//
//	err = client.Subscribe(ctx, "streamkit.ingest", func(msgCtx context.Context, data []byte) {
//	    fmt.Printf("received: %s\n", string(data))
//	})
//
// # Key-value buckets
//
// Used by the durable embedding backend (pkg/embedding.NATSCache,
// pkg/embedding.EmbeddingStorage) to persist cache entries and per-message
// embedding status across restarts:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "EMBEDDING_INDEX",
//	})
//
// CreateKeyValueBucket returns the existing bucket if one already exists,
// so it is safe to call on every process start.
//
// # Circuit breaker
//
//	err := client.Connect(ctx)
//	if errors.Is(err, natsclient.ErrCircuitOpen) {
//	    time.Sleep(client.Backoff())
//	    // retry later
//	}
//
//	client, err := natsclient.NewClient(url,
//	    natsclient.WithCircuitBreakerThreshold(5),
//	    natsclient.WithMaxBackoff(time.Minute),
//	)
//
// # Connection status
//
//	switch client.Status() {
//	case natsclient.StatusConnected:
//	case natsclient.StatusReconnecting:
//	case natsclient.StatusCircuitOpen:
//	case natsclient.StatusDisconnected:
//	}
//
// # Thread safety
//
// Client is safe for concurrent use: connection state is managed with
// atomics and mutexes, and Close is idempotent.
//
// # Testing
//
// natsclient's own tests use a real NATS server via testcontainers rather
// than mocks (see client_test.go, integration_test.go) — the circuit
// breaker's behavior under real reconnect/timeout conditions is exactly
// what mocked tests tend to miss.
package natsclient
