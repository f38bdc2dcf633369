package operator

import (
	"context"
	"log/slog"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// Sink wraps its input, invokes its function, and never emits: the
// function's returned response (which the contract requires to be empty)
// is discarded.
type Sink struct {
	base
	fn function.Sink
}

func NewSink(id uint64, name string, fn function.Sink, logger *slog.Logger) *Sink {
	return &Sink{base: newBase(id, name, function.KindSink, logger), fn: fn}
}

func (s *Sink) Open(ctx context.Context) error {
	if s.opened.Swap(true) {
		return nil
	}
	if s.fn == nil {
		return s.notConfigured()
	}
	if err := s.fn.Init(ctx); err != nil {
		// Clear the flag so that a retried Open calls Init again.
		s.opened.Store(false)
		return err
	}
	return nil
}

func (s *Sink) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.fn == nil {
		return nil
	}
	return s.fn.Close(ctx)
}

func (s *Sink) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if s.fn == nil {
		return false, s.notConfigured()
	}
	s.processed.Add(1)

	if _, err := s.fn.Execute(ctx, singleMessageInput(in)); err != nil {
		return false, s.recordError(function.KindSink, err)
	}
	return false, nil
}
