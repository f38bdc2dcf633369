package operator

import (
	"context"
	"log/slog"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// Filter behaves like Map structurally, but its function contract
// guarantees at most one retained, unmodified message back, so the operator
// forwards at most one message per invocation.
type Filter struct {
	base
	fn function.Filter
}

func NewFilter(id uint64, name string, fn function.Filter, logger *slog.Logger) *Filter {
	return &Filter{base: newBase(id, name, function.KindFilter, logger), fn: fn}
}

func (f *Filter) Open(ctx context.Context) error  { f.opened.Store(true); return nil }
func (f *Filter) Close(ctx context.Context) error { f.closed.Store(true); return nil }

func (f *Filter) Process(ctx context.Context, in *message.Message, _ int) (bool, error) {
	if f.fn == nil {
		return false, f.notConfigured()
	}
	f.processed.Add(1)

	resp, err := f.fn.Execute(ctx, singleMessageInput(in))
	if err != nil {
		return false, f.recordError(function.KindFilter, err)
	}
	if resp != nil && resp.Size() > 1 {
		resp = trimToOne(resp)
	}
	return f.emit(resp), nil
}

// trimToOne enforces the filter contract (0 or 1 output) even if a
// misbehaving function returns more.
func trimToOne(resp *message.FunctionResponse) *message.FunctionResponse {
	out := message.NewFunctionResponse()
	if msg := resp.At(0); msg != nil {
		out.Add(msg)
	}
	return out
}
