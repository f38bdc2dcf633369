// Package operator implements the flow-control shell around a function: it
// pulls from upstream edges, invokes its contained function, emits
// downstream, and tracks lifecycle and counters. The set of operator kinds
// is closed, so each kind is a concrete struct rather than a shared
// polymorphic implementation.
package operator

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	streamkiterrors "github.com/c360/streamkit/errors"
)

// Output is the write side of an outgoing edge, as seen by the operator
// that owns it. The engine's graph package supplies concrete
// implementations backed by pkg/buffer.
type Output interface {
	Write(msg *message.Message) error
}

// Operator is the flow-control contract every concrete variant satisfies.
type Operator interface {
	ID() uint64
	// SetID is called exactly once by the graph during registration; this
	// is the only point at which an operator's ID is assigned.
	SetID(id uint64)
	Name() string
	Kind() function.Kind

	// Process is invoked by the engine with zero (source) or one
	// (non-source) input message. slot disambiguates which incoming edge
	// the message arrived on, relevant only to Join. It returns true if at
	// least one downstream message was emitted.
	Process(ctx context.Context, in *message.Message, slot int) (bool, error)

	// Open/Close delegate to the contained function if present and are
	// idempotent.
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// SetOutputs wires the operator's downstream edges. Called once by the
	// graph during registration/connect.
	SetOutputs(outputs []Output)

	ProcessedCount() uint64
	OutputCount() uint64
	ErrorCount() uint64
	ResetCounters()
}

// base holds the state and behaviour common to every operator variant:
// identity, counters, logging, and broadcast emission to every outgoing
// edge.
type base struct {
	id      uint64
	name    string
	kind    function.Kind
	outputs []Output
	logger  *slog.Logger

	processed atomic.Uint64
	output    atomic.Uint64
	errors    atomic.Uint64

	opened atomic.Bool
	closed atomic.Bool
}

func newBase(id uint64, name string, kind function.Kind, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{id: id, name: name, kind: kind, logger: logger}
}

func (b *base) ID() uint64             { return b.id }
func (b *base) SetID(id uint64)        { b.id = id }
func (b *base) Name() string           { return b.name }
func (b *base) Kind() function.Kind    { return b.kind }
func (b *base) SetOutputs(o []Output)  { b.outputs = o }
func (b *base) ProcessedCount() uint64 { return b.processed.Load() }
func (b *base) OutputCount() uint64    { return b.output.Load() }
func (b *base) ErrorCount() uint64     { return b.errors.Load() }

func (b *base) ResetCounters() {
	b.processed.Store(0)
	b.output.Store(0)
	b.errors.Store(0)
}

// emit broadcasts every message in resp to every outgoing edge: every
// successor sees every record.
func (b *base) emit(resp *message.FunctionResponse) bool {
	if resp == nil || resp.IsEmpty() {
		return false
	}
	emitted := false
	for _, msg := range resp.Messages() {
		if msg == nil {
			continue
		}
		for _, out := range b.outputs {
			if err := out.Write(msg); err != nil {
				b.logger.Warn("operator: edge write failed", "operator", b.name, "error", err)
				continue
			}
		}
		b.output.Add(1)
		emitted = true
	}
	return emitted
}

func (b *base) recordError(fnKind function.Kind, err error) error {
	b.errors.Add(1)
	wrapped := streamkiterrors.NewFunctionError(b.name, fnKind.String(), err)
	b.logger.Error("operator: function error",
		"operator", b.name, "function_kind", fnKind.String(), "error", err)
	return wrapped
}

func (b *base) notConfigured() error {
	return streamkiterrors.NewNotConfigured(b.name, nil)
}

// singleMessageInput wraps one message into a fresh FunctionResponse, the
// pattern shared by Map, Filter, and Sink invocation.
func singleMessageInput(in *message.Message) *message.FunctionResponse {
	req := message.NewFunctionResponse()
	if in != nil {
		req.Add(in)
	}
	return req
}
