// Package builder implements the fluent construction surface: a chainable
// handle that appends operators to a fresh graph, wires them in append
// order, and delegates terminal calls to an engine.
package builder

import (
	"context"
	"errors"
	"log/slog"

	streamkiterrors "github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/engine"
	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/graph"
	"github.com/c360/streamkit/operator"
)

// noOperator is the sentinel last-id meaning "nothing appended yet".
const noOperator = 0

// Builder wraps a reference to an engine and the graph under construction,
// tracking the most recently appended operator so the next chained call
// knows what to connect from.
type Builder struct {
	eng    *engine.StreamEngine
	graph  *graph.ExecutionGraph
	logger *slog.Logger

	lastID   uint64
	final    bool
	graphID  uint64
	hasGraph bool
	err      error
}

var (
	errFinalized    = errors.New("builder: chain already finalized by sink()")
	errNoSource     = errors.New("builder: from_source must be the first call in a chain")
	errSharedIDs    = errors.New("builder: connect operands share operator ids")
	errRewireFailed = errors.New("builder: failed to rewire operand graph during connect")
)

// New starts a fresh builder bound to eng. edgeCapacity bounds every edge's
// FIFO; pass 0 for graph.DefaultEdgeCapacity.
func New(eng *engine.StreamEngine, edgeCapacity int, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		eng:    eng,
		graph:  graph.New(edgeCapacity),
		logger: logger,
	}
}

func (b *Builder) requireOpen() error {
	if b.final {
		return streamkiterrors.NewNotConfigured("builder", errFinalized)
	}
	return nil
}

func (b *Builder) requireLast() error {
	if b.lastID == noOperator {
		return streamkiterrors.NewNotConfigured("builder", errNoSource)
	}
	return nil
}

// FromSource appends a SourceOperator wrapping fn and sets it as the chain's
// current tail. Must be the first call in a chain.
func (b *Builder) FromSource(name string, fn function.Source) *Builder {
	if err := b.requireOpen(); err != nil {
		return b.fail(err)
	}
	op := operator.NewSource(0, name, fn, b.logger)
	b.lastID = b.graph.AddOperator(op)
	return b
}

// Map appends a MapOperator wrapping fn, connected from the chain's tail.
func (b *Builder) Map(name string, fn function.Map) *Builder {
	return b.appendLinear(operator.NewMap(0, name, fn, b.logger))
}

// Filter appends a FilterOperator wrapping fn, connected from the chain's tail.
func (b *Builder) Filter(name string, fn function.Filter) *Builder {
	return b.appendLinear(operator.NewFilter(0, name, fn, b.logger))
}

// FlatMap appends a FlatMapOperator wrapping fn.
func (b *Builder) FlatMap(name string, fn function.FlatMap) *Builder {
	return b.appendLinear(operator.NewFlatMap(0, name, fn, b.logger))
}

// KeyBy appends a KeyByOperator wrapping fn.
func (b *Builder) KeyBy(name string, fn function.KeyBy) *Builder {
	return b.appendLinear(operator.NewKeyBy(0, name, fn, b.logger))
}

// Window appends a WindowOperator wrapping fn.
func (b *Builder) Window(name string, fn function.Window) *Builder {
	return b.appendLinear(operator.NewWindow(0, name, fn, b.logger))
}

// Aggregate appends an AggregateOperator wrapping fn.
func (b *Builder) Aggregate(name string, fn function.Aggregate) *Builder {
	return b.appendLinear(operator.NewAggregate(0, name, fn, b.logger))
}

// TopK appends a TopKOperator wrapping fn.
func (b *Builder) TopK(name string, fn function.TopK) *Builder {
	return b.appendLinear(operator.NewTopK(0, name, fn, b.logger))
}

// ITopK appends an incremental TopKOperator wrapping fn.
func (b *Builder) ITopK(name string, fn function.ITopK) *Builder {
	return b.appendLinear(operator.NewITopK(0, name, fn, b.logger))
}

func (b *Builder) appendLinear(op operator.Operator) *Builder {
	if err := b.requireOpen(); err != nil {
		return b.fail(err)
	}
	if err := b.requireLast(); err != nil {
		return b.fail(err)
	}
	id := b.graph.AddOperator(op)
	if err := b.graph.Connect(b.lastID, id); err != nil {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", err))
	}
	b.lastID = id
	return b
}

// Connect merges other's graph into this one and inserts a Join operator
// fed by both chains' tails, on slot 0 (this builder's tail) and slot 1
// (other's tail). Both builders must be unfinished and must not share
// operator IDs — sharing would corrupt the merged ID space, so Connect
// refuses with NotConfigured rather than attempt a rebase.
func (b *Builder) Connect(name string, fn function.Join, joinBufferCapacity int, other *Builder) *Builder {
	if err := b.requireOpen(); err != nil {
		return b.fail(err)
	}
	if err := b.requireLast(); err != nil {
		return b.fail(err)
	}
	if err := other.requireLast(); err != nil {
		return b.fail(err)
	}
	if b.sharesOperatorsWith(other) {
		return b.fail(streamkiterrors.NewNotConfigured("builder",
			errSharedIDs))
	}

	otherOldTail := other.lastID
	otherOldOps := other.graph.Operators()
	// AddOperator mutates each operand operator's ID in place via SetID, so
	// the pre-merge IDs must be snapshotted before the copy loop touches
	// them; capturing them afterward would just read the new IDs back.
	otherOldIDs := make([]uint64, len(otherOldOps))
	for i, op := range otherOldOps {
		otherOldIDs[i] = op.ID()
	}
	for _, op := range otherOldOps {
		b.graph.AddOperator(op)
	}
	if !b.rewireFrom(other, otherOldOps, otherOldIDs) {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", errRewireFailed))
	}
	otherTail, ok := b.rewiredID(otherOldOps, otherOldIDs, otherOldTail)
	if !ok {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", errRewireFailed))
	}

	joinOp, err := operator.NewJoin(0, name, fn, joinBufferCapacity, b.logger)
	if err != nil {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", err))
	}
	joinID := b.graph.AddOperator(joinOp)
	if err := b.graph.ConnectSlot(b.lastID, joinID, 0); err != nil {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", err))
	}
	if err := b.graph.ConnectSlot(otherTail, joinID, 1); err != nil {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", err))
	}
	b.lastID = joinID
	return b
}

func (b *Builder) sharesOperatorsWith(other *Builder) bool {
	seen := make(map[uint64]struct{})
	for _, op := range b.graph.Operators() {
		seen[op.ID()] = struct{}{}
	}
	for _, op := range other.graph.Operators() {
		if _, ok := seen[op.ID()]; ok {
			return true
		}
	}
	return false
}

// rewireFrom re-creates other's edges inside b.graph. oldOps/oldIDs are the
// operand graph's operator list and their pre-merge IDs, captured before
// AddOperator overwrote each operator's self-reported ID in place; other's
// own adjacency lookups must therefore use oldIDs, not op.ID().
func (b *Builder) rewireFrom(other *Builder, oldOps []operator.Operator, oldIDs []uint64) bool {
	newOps := b.graph.Operators()[len(b.graph.Operators())-len(oldOps):]
	if len(oldOps) != len(newOps) {
		return false
	}
	idMap := make(map[uint64]uint64, len(oldOps))
	for i := range oldOps {
		idMap[oldIDs[i]] = newOps[i].ID()
	}
	for _, oldID := range oldIDs {
		for _, succ := range other.graph.Successors(oldID) {
			newSrc, ok1 := idMap[oldID]
			newDst, ok2 := idMap[succ]
			if !ok1 || !ok2 {
				return false
			}
			if err := b.graph.Connect(newSrc, newDst); err != nil {
				return false
			}
		}
	}
	return true
}

// rewiredID looks up the new-graph id an operand's old id was mapped to.
func (b *Builder) rewiredID(oldOps []operator.Operator, oldIDs []uint64, oldID uint64) (uint64, bool) {
	newOps := b.graph.Operators()[len(b.graph.Operators())-len(oldOps):]
	for i, id := range oldIDs {
		if id == oldID {
			return newOps[i].ID(), true
		}
	}
	return 0, false
}

// Sink appends a SinkOperator wrapping fn, connects it, and finalizes the
// graph: after Sink, the chain accepts no further intermediate calls.
func (b *Builder) Sink(name string, fn function.Sink) *Builder {
	if err := b.requireOpen(); err != nil {
		return b.fail(err)
	}
	if err := b.requireLast(); err != nil {
		return b.fail(err)
	}
	op := operator.NewSink(0, name, fn, b.logger)
	id := b.graph.AddOperator(op)
	if err := b.graph.Connect(b.lastID, id); err != nil {
		return b.fail(streamkiterrors.NewFatalEngineError("builder", err))
	}
	b.lastID = id
	b.final = true
	return b
}

// Err returns the first structural error the chain accumulated, or nil.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Execute submits the graph on first call (caching the assigned GraphId for
// idempotent reuse on later calls) and drives it to completion.
func (b *Builder) Execute(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	id, err := b.submit()
	if err != nil {
		return err
	}
	return b.eng.Execute(ctx, id)
}

// ExecuteAsync is Execute without blocking; see engine.StreamEngine.ExecuteAsync.
func (b *Builder) ExecuteAsync(ctx context.Context) (<-chan error, error) {
	if b.err != nil {
		return nil, b.err
	}
	id, err := b.submit()
	if err != nil {
		return nil, err
	}
	return b.eng.ExecuteAsync(ctx, id)
}

// Stop delegates to the engine for the graph this builder submitted. Calling
// Stop before Execute/ExecuteAsync is a no-op since there is nothing running.
func (b *Builder) Stop() error {
	if !b.hasGraph {
		return nil
	}
	return b.eng.Stop(b.graphID)
}

func (b *Builder) submit() (uint64, error) {
	if b.hasGraph {
		return b.graphID, nil
	}
	id, err := b.eng.Submit(b.graph)
	if err != nil {
		return 0, err
	}
	b.graphID = id
	b.hasGraph = true
	return id, nil
}

// Graph exposes the underlying graph for inspection/testing without
// submitting it.
func (b *Builder) Graph() *graph.ExecutionGraph { return b.graph }
