package operator

import (
	"context"
	"log/slog"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// Source is the SourceOperator variant: it invokes its function ignoring
// any input, emitting whatever the function produces, until has_next
// reports exhaustion.
type Source struct {
	base
	fn function.Source
}

// NewSource registers fn (which must be non-nil; a builder rejects a
// mismatched or nil function before this constructor is ever called from
// the graph) as the operator's Source function.
func NewSource(id uint64, name string, fn function.Source, logger *slog.Logger) *Source {
	return &Source{base: newBase(id, name, function.KindSource, logger), fn: fn}
}

func (s *Source) Open(ctx context.Context) error {
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

func (s *Source) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.fn == nil {
		return nil
	}
	return s.fn.Close(ctx)
}

// HasNext reports whether another call to Process would find more data.
// The engine samples this between invocations to detect exhaustion.
func (s *Source) HasNext() bool {
	if s.fn == nil {
		return false
	}
	return s.fn.HasNext()
}

// Process ignores in and slot: sources have no upstream edge.
func (s *Source) Process(ctx context.Context, _ *message.Message, _ int) (bool, error) {
	if s.fn == nil {
		return false, s.notConfigured()
	}
	if !s.fn.HasNext() {
		return false, nil
	}

	resp, err := s.fn.Execute(ctx, message.NewFunctionResponse())
	if err != nil {
		return false, s.recordError(function.KindSource, err)
	}
	s.processed.Add(1)
	return s.emit(resp), nil
}
