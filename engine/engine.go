// Package engine implements the StreamEngine: graph submission, topological
// scheduling, and the three execution modes (SingleThreaded, Pooled,
// Async), plus per-graph lifecycle state and throughput metrics.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	streamkiterrors "github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/graph"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/metric"
	"github.com/c360/streamkit/operator"
	"github.com/c360/streamkit/pkg/retry"
	"github.com/c360/streamkit/pkg/worker"
)

// hasNext is satisfied by any operator wrapping a Source function; used to
// detect exhaustion without the engine needing a concrete Source type.
type hasNext interface {
	HasNext() bool
}

// State is a submitted graph's lifecycle stage.
type State int

const (
	StateUnknown State = iota
	StateSubmitted
	StateRunning
	StateCompleted
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Mode selects the scheduling strategy for every graph an engine drives. It
// is fixed for the engine instance's lifetime.
type Mode int

const (
	SingleThreaded Mode = iota
	Pooled
	Async
)

func (m Mode) String() string {
	switch m {
	case Pooled:
		return "pooled"
	case Async:
		return "async"
	default:
		return "single_threaded"
	}
}

// submittedGraph is the engine's private record for one submitted graph:
// the graph itself, its assigned ID, and its lifecycle state.
type submittedGraph struct {
	mu    sync.Mutex
	id    uint64
	graph *graph.ExecutionGraph
	state State

	stopRequested bool
}

func (sg *submittedGraph) setState(s State) {
	sg.mu.Lock()
	sg.state = s
	sg.mu.Unlock()
}

func (sg *submittedGraph) getState() State {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return sg.state
}

func (sg *submittedGraph) requestStop() {
	sg.mu.Lock()
	sg.stopRequested = true
	sg.mu.Unlock()
}

func (sg *submittedGraph) stopWasRequested() bool {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return sg.stopRequested
}

// Config bounds engine behaviour independent of any one graph: worker count
// for Pooled mode and the poll interval the drive loop uses between rounds
// while waiting for more source data.
type Config struct {
	Mode         Mode
	PoolWorkers  int
	PollInterval time.Duration

	// OpenRetry bounds retries of an operator's open() call. Any failure is
	// retried (except one wrapped with retry.NonRetryable); an open() that
	// still fails aborts the whole graph with a ResourceError.
	OpenRetry retry.Config
}

// DefaultConfig returns single-threaded execution.
func DefaultConfig() Config {
	return Config{
		Mode:         SingleThreaded,
		PoolWorkers:  4,
		PollInterval: time.Millisecond,
		OpenRetry:    retry.DefaultConfig(),
	}
}

// StreamEngine owns submitted graphs and their lifecycle states, drives
// execution under the configured scheduling mode, and aggregates
// throughput metrics. Each engine instance has its own graph-ID space and
// counters; there is no global or shared state between engines.
type StreamEngine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	mu     sync.Mutex
	graphs map[uint64]*submittedGraph
	nextID uint64

	metricsMu      sync.Mutex
	processedTotal uint64
	runStart       time.Time
}

// Option configures a StreamEngine at construction.
type Option func(*StreamEngine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *StreamEngine) { e.logger = logger }
}

func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(e *StreamEngine) { e.metrics = registry }
}

// New constructs a StreamEngine under the given configuration.
func New(cfg Config, opts ...Option) *StreamEngine {
	if cfg.PoolWorkers <= 0 {
		cfg.PoolWorkers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	e := &StreamEngine{
		cfg:      cfg,
		logger:   slog.Default(),
		graphs:   make(map[uint64]*submittedGraph),
		runStart: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates g and, on success, records it with a fresh monotonic
// graph ID and state Submitted. On failure it raises InvalidGraph and
// records no graph.
func (e *StreamEngine) Submit(g *graph.ExecutionGraph) (uint64, error) {
	if g == nil {
		return 0, streamkiterrors.NewInvalidGraph(fmt.Errorf("nil graph"))
	}
	if !g.Validate() {
		return 0, streamkiterrors.NewInvalidGraph(
			fmt.Errorf("graph failed topological validation (cycle or dangling edge)"))
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	sg := &submittedGraph{id: id, graph: g, state: StateSubmitted}
	e.graphs[id] = sg
	e.mu.Unlock()

	e.recordGraphState(id, StateSubmitted)
	e.logger.Info("engine: graph submitted", "graph_id", id)
	return id, nil
}

// State returns the current lifecycle state for graphID, or StateUnknown if
// the ID is not registered.
func (e *StreamEngine) State(graphID uint64) State {
	sg := e.lookup(graphID)
	if sg == nil {
		return StateUnknown
	}
	return sg.getState()
}

func (e *StreamEngine) lookup(graphID uint64) *submittedGraph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graphs[graphID]
}

// Execute drives graphID synchronously to completion, to Stopped, or to
// Error.
func (e *StreamEngine) Execute(ctx context.Context, graphID uint64) error {
	sg := e.lookup(graphID)
	if sg == nil {
		return streamkiterrors.NewInvalidGraph(fmt.Errorf("graph %d not submitted", graphID))
	}
	return e.runToCompletion(ctx, sg)
}

// ExecuteAsync behaves like Execute but returns immediately; the drive runs
// on an internal goroutine. The returned channel receives the terminal
// error (nil on success) once the run finishes.
func (e *StreamEngine) ExecuteAsync(ctx context.Context, graphID uint64) (<-chan error, error) {
	sg := e.lookup(graphID)
	if sg == nil {
		return nil, streamkiterrors.NewInvalidGraph(fmt.Errorf("graph %d not submitted", graphID))
	}
	result := make(chan error, 1)
	go func() {
		result <- e.runToCompletion(ctx, sg)
		close(result)
	}()
	return result, nil
}

// Stop transitions graphID to Stopped. The drive loop observes this
// cooperatively at the next operator boundary; remaining buffered records
// are discarded after close() has run on every operator. Stopping a graph
// already Completed or Stopped is a no-op.
func (e *StreamEngine) Stop(graphID uint64) error {
	sg := e.lookup(graphID)
	if sg == nil {
		return streamkiterrors.NewInvalidGraph(fmt.Errorf("graph %d not submitted", graphID))
	}
	sg.mu.Lock()
	state := sg.state
	sg.mu.Unlock()
	if state == StateCompleted || state == StateStopped {
		return nil
	}
	sg.requestStop()
	return nil
}

// RemoveGraph stops graphID (idempotently) and forgets it.
func (e *StreamEngine) RemoveGraph(graphID uint64) error {
	if err := e.Stop(graphID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.graphs, graphID)
	e.mu.Unlock()
	return nil
}

// Throughput returns total processed messages divided by wall-clock
// runtime since the engine was constructed or last reset.
func (e *StreamEngine) Throughput() float64 {
	e.metricsMu.Lock()
	defer e.metricsMu.Unlock()
	elapsed := time.Since(e.runStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	rate := float64(e.processedTotal) / elapsed
	if e.metrics != nil {
		e.metrics.CoreMetrics().RecordThroughput(rate)
	}
	return rate
}

// ResetMetrics zeroes the processed-message counter and restarts the
// throughput window.
func (e *StreamEngine) ResetMetrics() {
	e.metricsMu.Lock()
	e.processedTotal = 0
	e.runStart = time.Now()
	e.metricsMu.Unlock()
}

// Health returns a coarse status string: "healthy" unless any submitted
// graph is in the Error state, in which case "degraded".
func (e *StreamEngine) Health() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sg := range e.graphs {
		if sg.getState() == StateError {
			return "degraded"
		}
	}
	return "healthy"
}

func (e *StreamEngine) recordGraphState(graphID uint64, s State) {
	if e.metrics == nil {
		return
	}
	e.metrics.CoreMetrics().RecordGraphState(fmt.Sprintf("%d", graphID), int(s))
}

func (e *StreamEngine) recordOperatorEvent(op operator.Operator, counter string) {
	if e.metrics == nil {
		return
	}
	e.metrics.CoreMetrics().RecordOperatorEvent(op.Name(), op.Kind().String(), counter)
}

func (e *StreamEngine) addProcessed(n uint64) {
	e.metricsMu.Lock()
	e.processedTotal += n
	e.metricsMu.Unlock()
}

// runToCompletion opens every operator in topological order, drives rounds
// until the termination criterion holds or a stop is observed, then closes
// every operator in reverse topological order whether the drive completed,
// stopped or failed. If opening fails, openAll closes the operators it had
// already opened before the error is returned.
func (e *StreamEngine) runToCompletion(ctx context.Context, sg *submittedGraph) (err error) {
	sg.setState(StateRunning)
	e.recordGraphState(sg.id, StateRunning)
	e.logger.Info("engine: graph running", "graph_id", sg.id, "mode", e.cfg.Mode)

	if sg.graph.IsEmpty() {
		sg.setState(StateCompleted)
		e.recordGraphState(sg.id, StateCompleted)
		return nil
	}

	order := sg.graph.TopologicalOrder()
	if len(order) == 0 {
		sg.setState(StateError)
		e.recordGraphState(sg.id, StateError)
		return streamkiterrors.NewFatalEngineError("engine", fmt.Errorf("graph became invalid before execution"))
	}

	if openErr := e.openAll(ctx, sg, order); openErr != nil {
		sg.setState(StateError)
		e.recordGraphState(sg.id, StateError)
		return openErr
	}

	defer func() {
		closeErr := e.closeAll(ctx, sg, order)
		if err == nil {
			err = closeErr
		}
	}()

	stopped, driveErr := e.drive(ctx, sg, order)
	if driveErr != nil {
		sg.setState(StateError)
		e.recordGraphState(sg.id, StateError)
		return driveErr
	}
	if stopped {
		sg.setState(StateStopped)
		e.recordGraphState(sg.id, StateStopped)
		return nil
	}
	sg.setState(StateCompleted)
	e.recordGraphState(sg.id, StateCompleted)
	return nil
}

// openAll calls Open in topological order. Every Open failure is retried
// with backoff per the engine's OpenRetry config (an error wrapped with
// retry.NonRetryable is not retried). If an operator still fails to open,
// the operators already opened are closed in reverse order and the failure
// is returned as a ResourceError, aborting start-up.
func (e *StreamEngine) openAll(ctx context.Context, sg *submittedGraph, order []uint64) error {
	for i, id := range order {
		op, ok := sg.graph.Operator(id)
		if !ok {
			continue
		}
		err := retry.Do(ctx, e.cfg.OpenRetry, func() error { return op.Open(ctx) })
		if err != nil {
			_ = e.closeAll(ctx, sg, order[:i])
			return streamkiterrors.NewResourceError(op.Name(), op.Kind().String(), err)
		}
	}
	return nil
}

// closeAll runs close() on every operator in reverse topological order,
// even after a stop or an error, and reports the first close failure so a
// failed shutdown is never silently swallowed.
func (e *StreamEngine) closeAll(ctx context.Context, sg *submittedGraph, order []uint64) error {
	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		op, ok := sg.graph.Operator(order[i])
		if !ok {
			continue
		}
		if err := op.Close(ctx); err != nil && firstErr == nil {
			firstErr = streamkiterrors.NewResourceError(op.Name(), op.Kind().String(), err)
		}
	}
	return firstErr
}

// drive runs successive rounds (source pull + downstream drain) until the
// termination criterion is met — every source reports has_next() == false
// and every edge buffer is empty — or a stop is observed. It returns
// (stopped, err).
func (e *StreamEngine) drive(ctx context.Context, sg *submittedGraph, order []uint64) (bool, error) {
	sourceIDs := sg.graph.Sources()

	for {
		if sg.stopWasRequested() {
			return true, nil
		}

		var roundErr error
		if e.cfg.Mode == Pooled {
			roundErr = e.runRoundPooled(ctx, sg, order)
		} else {
			// SingleThreaded and Async share the same sequential round.
			// ExecuteAsync, in any mode, runs this loop on its own goroutine
			// and returns to the caller immediately.
			roundErr = e.runRoundSequential(ctx, sg, order)
		}
		if roundErr != nil {
			return false, roundErr
		}

		if e.terminationReached(sg, sourceIDs, order) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, streamkiterrors.NewFatalEngineError("engine", ctx.Err())
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

func (e *StreamEngine) terminationReached(sg *submittedGraph, sourceIDs, order []uint64) bool {
	for _, id := range sourceIDs {
		op, ok := sg.graph.Operator(id)
		if !ok {
			continue
		}
		if src, ok := op.(hasNext); ok && src.HasNext() {
			return false
		}
	}
	for _, id := range order {
		for _, edge := range sg.graph.InEdges(id) {
			if !edge.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// runRoundSequential drives every source once, then drains every incoming
// edge of every non-source operator, all on the calling goroutine — the
// SingleThreaded (and Async) round. No synchronization on counters or edge
// buffers is required for correctness here; pkg/buffer's locking is simply
// along for the ride since the same buffer type backs every mode's edges.
func (e *StreamEngine) runRoundSequential(ctx context.Context, sg *submittedGraph, order []uint64) error {
	for _, id := range order {
		op, ok := sg.graph.Operator(id)
		if !ok {
			continue
		}
		if err := e.driveOperator(ctx, sg, op, id); err != nil {
			return err
		}
	}
	return nil
}

// runRoundPooled dispatches each operator's share of the round to its own
// goroutine under an errgroup, backed by a pkg/worker.Pool for the actual
// task execution. Because a single goroutine handles the entirety of one
// operator's work for the round, mutual exclusion per operator holds
// trivially; edge buffers remain the only shared mutable state, protected
// by pkg/buffer's internal locking.
func (e *StreamEngine) runRoundPooled(ctx context.Context, sg *submittedGraph, order []uint64) error {
	pool := worker.NewPool[func() error](e.cfg.PoolWorkers, len(order)+1,
		func(_ context.Context, task func() error) error { return task() })
	if err := pool.Start(ctx); err != nil {
		return streamkiterrors.NewFatalEngineError("engine", err)
	}
	defer func() { _ = pool.Stop(5 * time.Second) }()

	g, _ := errgroup.WithContext(ctx)
	for _, id := range order {
		id := id
		op, ok := sg.graph.Operator(id)
		if !ok {
			continue
		}
		done := make(chan error, 1)
		if err := pool.Submit(func() error {
			done <- e.driveOperator(ctx, sg, op, id)
			return nil
		}); err != nil {
			return streamkiterrors.NewFatalEngineError("engine", err)
		}
		g.Go(func() error { return <-done })
	}
	return g.Wait()
}

// driveOperator runs one operator's share of a round: a single Process
// call for a source, or one Process call per buffered message across all
// of its incoming edges for everything else.
func (e *StreamEngine) driveOperator(ctx context.Context, sg *submittedGraph, op operator.Operator, id uint64) error {
	if _, isSource := op.(hasNext); isSource {
		return e.invoke(ctx, sg, op, nil, 0)
	}
	for _, edge := range sg.graph.InEdges(id) {
		for {
			msg, ok := edge.Read()
			if !ok {
				break
			}
			if err := e.invoke(ctx, sg, op, msg, edge.ToSlot); err != nil {
				return err
			}
		}
	}
	return nil
}

// invoke calls op.Process, records counters, and classifies the outcome:
// a FunctionError stays local (logged, operator error counter incremented,
// engine proceeds); anything else aborts the graph.
func (e *StreamEngine) invoke(ctx context.Context, sg *submittedGraph, op operator.Operator, msg *message.Message, slot int) error {
	_, err := op.Process(ctx, msg, slot)
	e.addProcessed(1)
	e.recordOperatorEvent(op, "processed")

	if err == nil {
		e.recordOperatorEvent(op, "output")
		return nil
	}

	switch streamkiterrors.KindOf(err) {
	case streamkiterrors.KindFunctionError:
		e.recordOperatorEvent(op, "error")
		e.logger.Error("engine: function error, record discarded",
			"operator", op.Name(), "kind", op.Kind().String(), "error", err)
		return nil
	case streamkiterrors.KindNotConfigured:
		return err
	default:
		return streamkiterrors.NewFatalEngineError(op.Name(), err)
	}
}
