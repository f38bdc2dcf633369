// Package natssource implements a Source function that subscribes to a NATS
// subject and turns each delivered payload into a text or binary message.
package natssource

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/natsclient"
)

// Config configures the NATS-backed source.
type Config struct {
	URL     string
	Subject string
	// Binary selects payload kind: false decodes each message as UTF-8 text,
	// true carries it through as opaque bytes.
	Binary bool
	Logger *slog.Logger
}

// Function pulls messages off a NATS subject. Delivery is push-driven by the
// NATS client on its own goroutine; Execute drains whatever has arrived
// since the previous call without blocking, so the engine's poll loop stays
// responsive to other operators.
type Function struct {
	cfg    Config
	client *natsclient.Client
	logger *slog.Logger

	mu      sync.Mutex
	pending [][]byte
	closed  bool
}

// New builds a source bound to a NATS subject; the connection and
// subscription are established in Init, per the Source lifecycle.
func New(cfg Config) *Function {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Function{cfg: cfg, logger: logger}
}

func (f *Function) Kind() function.Kind { return function.KindSource }

// Init connects to NATS and subscribes to the configured subject, buffering
// every delivered payload for the next Execute call to drain.
func (f *Function) Init(ctx context.Context) error {
	client, err := natsclient.NewClient(f.cfg.URL)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	f.client = client

	return client.Subscribe(ctx, f.cfg.Subject, func(_ context.Context, data []byte) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			return
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		f.pending = append(f.pending, buf)
	})
}

// Execute drains everything buffered since the previous call, converting
// each payload to a message per the configured content kind.
func (f *Function) Execute(_ context.Context, _ *message.FunctionResponse) (*message.FunctionResponse, error) {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	out := message.NewFunctionResponse()
	for _, data := range batch {
		var content message.Content
		if f.cfg.Binary {
			content = message.BinaryContent(data)
		} else {
			content = message.TextContent(string(data))
		}
		msg := message.New(message.NextID(), content)
		msg.SetMetadata("nats.subject", f.cfg.Subject)
		out.Add(msg)
	}
	return out, nil
}

// HasNext reports true until the source is closed; a NATS subject has no
// natural end-of-stream, so exhaustion is driven only by an explicit Close.
func (f *Function) HasNext() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

// Close unsubscribes and disconnects from NATS.
func (f *Function) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	return f.client.Close(ctx)
}
