// Package natssink implements a Sink function that publishes each incoming
// message's payload to a NATS subject.
package natssink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/natsclient"
)

// Config configures the NATS-backed sink.
type Config struct {
	URL     string
	Subject string
	Logger  *slog.Logger
}

// Function publishes every message it receives to a single NATS subject,
// encoding text content verbatim and binary-shaped content as raw bytes.
type Function struct {
	cfg    Config
	client *natsclient.Client
	logger *slog.Logger
}

// New builds a sink bound to a NATS subject; the connection is established
// in Init, per the Sink lifecycle.
func New(cfg Config) *Function {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Function{cfg: cfg, logger: logger}
}

func (f *Function) Kind() function.Kind { return function.KindSink }

// Init connects to NATS.
func (f *Function) Init(ctx context.Context) error {
	client, err := natsclient.NewClient(f.cfg.URL)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	f.client = client
	return nil
}

// Execute publishes every input message and returns an empty response, per
// the Sink contract that all input is consumed.
func (f *Function) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	for _, msg := range in.Messages() {
		if msg == nil {
			continue
		}
		data, err := payload(msg.Content())
		if err != nil {
			f.logger.Warn("natssink: dropping message with unpublishable content",
				"message_id", msg.ID(), "error", err)
			continue
		}
		if err := f.client.Publish(ctx, f.cfg.Subject, data); err != nil {
			return nil, fmt.Errorf("natssink: publish: %w", err)
		}
	}
	return message.NewFunctionResponse(), nil
}

func payload(c message.Content) ([]byte, error) {
	if text, ok := c.Text(); ok {
		return []byte(text), nil
	}
	if data, ok := c.Bytes(); ok {
		return data, nil
	}
	return nil, fmt.Errorf("content kind %s has no publishable byte form", c.Kind())
}

// Close disconnects from NATS.
func (f *Function) Close(ctx context.Context) error {
	if f.client == nil {
		return nil
	}
	return f.client.Close(ctx)
}
