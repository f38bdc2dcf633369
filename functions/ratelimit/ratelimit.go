// Package ratelimit implements a Filter function that bounds the rate of
// messages allowed to pass, dropping the excess rather than blocking the
// graph's poll loop.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// Config configures the limiter.
type Config struct {
	// PerSecond is the sustained rate of messages allowed through.
	PerSecond float64
	// Burst is the number of messages allowed in a single instant above the
	// sustained rate.
	Burst int
}

// Function drops messages once the configured rate is exceeded rather than
// blocking, since a Filter must return promptly for the engine's poll loop
// to keep servicing other operators.
type Function struct {
	limiter *rate.Limiter
}

// New builds a token-bucket rate limiter.
func New(cfg Config) *Function {
	return &Function{limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst)}
}

func (f *Function) Kind() function.Kind { return function.KindFilter }

// Execute keeps a message only if the limiter has a token available for it
// at the moment of the call.
func (f *Function) Execute(_ context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	for _, msg := range in.Messages() {
		if msg == nil {
			continue
		}
		if f.limiter.Allow() {
			out.Add(msg)
		}
	}
	return out, nil
}
