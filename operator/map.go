package operator

import (
	"context"
	"log/slog"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// Map wraps a single input message into a one-element FunctionResponse,
// invokes its function, and emits every non-nil message the function
// returns in the same order.
type Map struct {
	base
	fn function.Map
}

func NewMap(id uint64, name string, fn function.Map, logger *slog.Logger) *Map {
	return &Map{base: newBase(id, name, function.KindMap, logger), fn: fn}
}

func (m *Map) Open(ctx context.Context) error  { m.opened.Store(true); return nil }
func (m *Map) Close(ctx context.Context) error { m.closed.Store(true); return nil }

func (m *Map) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if m.fn == nil {
		return false, m.notConfigured()
	}
	m.processed.Add(1)

	resp, err := m.fn.Execute(ctx, singleMessageInput(in))
	if err != nil {
		return false, m.recordError(function.KindMap, err)
	}
	return m.emit(resp), nil
}
