package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/engine"
	streamkiterrors "github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/graph"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/operator"
)

type sliceSource struct {
	items      []string
	next       int
	initCalls  atomic.Int32
	closeCalls atomic.Int32
}

func (s *sliceSource) Kind() function.Kind        { return function.KindSource }
func (s *sliceSource) Init(context.Context) error { s.initCalls.Add(1); return nil }
func (s *sliceSource) HasNext() bool              { return s.next < len(s.items) }
func (s *sliceSource) Close(context.Context) error { s.closeCalls.Add(1); return nil }
func (s *sliceSource) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	if s.HasNext() {
		out.Add(message.New(uint64(s.next+1), message.TextContent(s.items[s.next])))
		s.next++
	}
	return out, nil
}

type upperMap struct{}

func (upperMap) Kind() function.Kind { return function.KindMap }
func (upperMap) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	for _, m := range in.Messages() {
		text, _ := m.Content().Text()
		next := m.Clone(m.ID())
		next.SetContent(message.TextContent(strings.ToUpper(text)))
		out.Add(next)
	}
	return out, nil
}

type collectSink struct {
	mu         sync.Mutex
	received   []string
	initCalls  atomic.Int32
	closeCalls atomic.Int32
}

func (s *collectSink) Kind() function.Kind        { return function.KindSink }
func (s *collectSink) Init(context.Context) error { s.initCalls.Add(1); return nil }
func (s *collectSink) Close(context.Context) error { s.closeCalls.Add(1); return nil }
func (s *collectSink) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range in.Messages() {
		text, _ := m.Content().Text()
		s.received = append(s.received, text)
	}
	return message.NewFunctionResponse(), nil
}

func (s *collectSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// counterSource never reports exhaustion; a graph built on it only
// terminates via an explicit Stop.
type counterSource struct {
	n atomic.Uint64
}

func (s *counterSource) Kind() function.Kind        { return function.KindSource }
func (s *counterSource) Init(context.Context) error { return nil }
func (s *counterSource) HasNext() bool              { return true }
func (s *counterSource) Close(context.Context) error { return nil }
func (s *counterSource) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	n := s.n.Add(1)
	out := message.NewFunctionResponse()
	out.Add(message.New(n, message.TextContent("tick")))
	return out, nil
}

// stopAfter counts sink invocations and requests the engine stop the
// named graph once threshold is reached.
type stopAfter struct {
	mu        sync.Mutex
	count     int
	threshold int
	eng       *engine.StreamEngine
	graphID   uint64
}

func (s *stopAfter) Kind() function.Kind        { return function.KindSink }
func (s *stopAfter) Init(context.Context) error { return nil }
func (s *stopAfter) Close(context.Context) error { return nil }
func (s *stopAfter) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	s.mu.Lock()
	s.count += in.Size()
	reached := s.count >= s.threshold
	s.mu.Unlock()
	if reached {
		_ = s.eng.Stop(s.graphID)
	}
	return message.NewFunctionResponse(), nil
}

// failingMap is a Map operator whose own Process returns a plain,
// unclassified error. (An error returned by a Map function is wrapped as a
// FunctionError by the operator and stays local.) The engine's invoke()
// promotes this one to a FatalEngineError, which a pooled round's errgroup
// returns once every operator's share of the round has finished.
type failingMap struct {
	*operator.Map
	calls atomic.Int32
}

func newFailingMap() *failingMap {
	return &failingMap{Map: operator.NewMap(0, "map", upperMap{}, nil)}
}

func (f *failingMap) Process(ctx context.Context, in *message.Message, slot int) (bool, error) {
	f.calls.Add(1)
	return false, errors.New("boom")
}

func buildLinearGraph(t *testing.T, src function.Source, mapOp operator.Operator, sink function.Sink) (*graph.ExecutionGraph, uint64, uint64, uint64) {
	t.Helper()
	g := graph.New(0)
	srcID := g.AddOperator(operator.NewSource(0, "src", src, nil))
	mapID := g.AddOperator(mapOp)
	sinkID := g.AddOperator(operator.NewSink(0, "sink", sink, nil))
	require.NoError(t, g.Connect(srcID, mapID))
	require.NoError(t, g.Connect(mapID, sinkID))
	return g, srcID, mapID, sinkID
}

func TestPooledModeSchedulesEveryOperatorAndPreservesOrder(t *testing.T) {
	sink := &collectSink{}
	g, _, _, _ := buildLinearGraph(t, &sliceSource{items: []string{"a", "bb", "ccc"}}, operator.NewMap(0, "map", upperMap{}, nil), sink)

	cfg := engine.DefaultConfig()
	cfg.Mode = engine.Pooled
	cfg.PoolWorkers = 2
	eng := engine.New(cfg)

	graphID, err := eng.Submit(g)
	require.NoError(t, err)
	require.NoError(t, eng.Execute(context.Background(), graphID))

	assert.Equal(t, []string{"A", "BB", "CCC"}, sink.snapshot())
	assert.Equal(t, engine.StateCompleted, eng.State(graphID))
}

func TestStopDuringDriveHaltsAnUnboundedSource(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	sink := &stopAfter{threshold: 3, eng: eng}

	g := graph.New(0)
	srcID := g.AddOperator(operator.NewSource(0, "counter", &counterSource{}, nil))
	sinkID := g.AddOperator(operator.NewSink(0, "stop-after-3", sink, nil))
	require.NoError(t, g.Connect(srcID, sinkID))

	graphID, err := eng.Submit(g)
	require.NoError(t, err)
	sink.graphID = graphID

	result, err := eng.ExecuteAsync(context.Background(), graphID)
	require.NoError(t, err)

	select {
	case runErr := <-result:
		require.NoError(t, runErr)
	case <-time.After(5 * time.Second):
		t.Fatal("stop request was not observed; drive loop kept running")
	}

	assert.Equal(t, engine.StateStopped, eng.State(graphID))
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.GreaterOrEqual(t, sink.count, sink.threshold)
}

func TestFatalEngineErrorPropagatesThroughPooledErrgroup(t *testing.T) {
	failing := newFailingMap()
	g, _, _, _ := buildLinearGraph(t, &sliceSource{items: []string{"a"}}, failing, &collectSink{})

	cfg := engine.DefaultConfig()
	cfg.Mode = engine.Pooled
	cfg.PoolWorkers = 2
	eng := engine.New(cfg)

	graphID, err := eng.Submit(g)
	require.NoError(t, err)

	runErr := eng.Execute(context.Background(), graphID)
	require.Error(t, runErr)
	assert.Equal(t, streamkiterrors.KindFatalEngineError, streamkiterrors.KindOf(runErr))
	assert.Equal(t, engine.StateError, eng.State(graphID))
}

func TestStopIsIdempotentOnceTerminationIsReached(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	g, _, _, _ := buildLinearGraph(t, &sliceSource{items: []string{"a"}}, operator.NewMap(0, "map", upperMap{}, nil), &collectSink{})

	graphID, err := eng.Submit(g)
	require.NoError(t, err)
	require.NoError(t, eng.Execute(context.Background(), graphID))
	require.Equal(t, engine.StateCompleted, eng.State(graphID))

	// Stopping an already-completed graph must be a no-op, not an error,
	// and must not flip its terminal state back to Stopped.
	require.NoError(t, eng.Stop(graphID))
	require.NoError(t, eng.Stop(graphID))
	assert.Equal(t, engine.StateCompleted, eng.State(graphID))
}

func TestCloseRunsOnEveryOperatorEvenAfterAFatalError(t *testing.T) {
	src := &sliceSource{items: []string{"a"}}
	sink := &collectSink{}
	failing := newFailingMap()
	g, _, _, _ := buildLinearGraph(t, src, failing, sink)

	eng := engine.New(engine.DefaultConfig())
	graphID, err := eng.Submit(g)
	require.NoError(t, err)

	require.Error(t, eng.Execute(context.Background(), graphID))

	// The map operator has no Init/Close of its own to observe, but the
	// source and sink on either side of it delegate Open/Close straight to
	// their function; every graph, opened or aborted mid-drive, must run
	// exactly one Close per operator that was opened.
	assert.EqualValues(t, 1, src.initCalls.Load())
	assert.EqualValues(t, 1, src.closeCalls.Load())
	assert.EqualValues(t, 1, sink.initCalls.Load())
	assert.EqualValues(t, 1, sink.closeCalls.Load())
}
