// Package graph implements the dataflow DAG registry: operator IDs,
// adjacency in both directions, topological ordering, and cycle detection.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/operator"
	"github.com/c360/streamkit/pkg/buffer"
)

// DefaultEdgeCapacity bounds an edge's FIFO buffer when none is supplied.
const DefaultEdgeCapacity = 1024

// Edge is a directed connection between two operators, backed by a bounded
// FIFO. ToSlot disambiguates the target's input port (used by Join, always
// 0 for every other variant).
type Edge struct {
	From, To uint64
	ToSlot   int
	buf      buffer.Buffer[*message.Message]
}

func (e *Edge) Write(msg *message.Message) error { return e.buf.Write(msg) }
func (e *Edge) Read() (*message.Message, bool)   { return e.buf.Read() }
func (e *Edge) IsEmpty() bool                     { return e.buf.IsEmpty() }
func (e *Edge) Size() int                         { return e.buf.Size() }

// ExecutionGraph is a mapping from operator ID to operator, plus forward
// and reverse adjacency lists of neighbour IDs. Reverse adjacency is
// maintained as the exact transpose of forward adjacency at every mutation.
type ExecutionGraph struct {
	mu sync.RWMutex

	operators map[uint64]operator.Operator
	order     []uint64 // registration order, for deterministic iteration
	forward   map[uint64][]uint64
	reverse   map[uint64][]uint64
	outEdges  map[uint64][]*Edge
	inEdges   map[uint64][]*Edge

	nextID     uint64
	edgeCap    int
}

// New returns an empty graph. edgeCapacity bounds every edge's FIFO; if
// <= 0, DefaultEdgeCapacity is used.
func New(edgeCapacity int) *ExecutionGraph {
	if edgeCapacity <= 0 {
		edgeCapacity = DefaultEdgeCapacity
	}
	return &ExecutionGraph{
		operators: make(map[uint64]operator.Operator),
		forward:   make(map[uint64][]uint64),
		reverse:   make(map[uint64][]uint64),
		outEdges:  make(map[uint64][]*Edge),
		inEdges:   make(map[uint64][]*Edge),
		edgeCap:   edgeCapacity,
	}
}

// AddOperator assigns the next sequential ID, stores op, and initialises
// both adjacency entries to empty. The caller-supplied operator retains
// whatever ID it was constructed with for logging purposes, but the graph's
// own ID space is what the engine and topological order use.
func (g *ExecutionGraph) AddOperator(op operator.Operator) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID
	op.SetID(id)

	g.operators[id] = op
	g.order = append(g.order, id)
	g.forward[id] = nil
	g.reverse[id] = nil
	return id
}

// Connect appends target to source's forward list and source to target's
// reverse list, delivering to the target's slot 0. Duplicates are allowed:
// multi-edges model replicated fan-out.
func (g *ExecutionGraph) Connect(sourceID, targetID uint64) error {
	return g.ConnectSlot(sourceID, targetID, 0)
}

// ConnectSlot is Connect with an explicit target input slot, used by the
// builder to wire a Join operator's two distinct inputs.
func (g *ExecutionGraph) ConnectSlot(sourceID, targetID uint64, slot int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.operators[sourceID]
	if !ok {
		return unknownOperator(sourceID)
	}
	dst, ok := g.operators[targetID]
	if !ok {
		return unknownOperator(targetID)
	}

	buf, err := buffer.NewCircularBuffer[*message.Message](g.edgeCap,
		buffer.WithOverflowPolicy[*message.Message](buffer.Block))
	if err != nil {
		return err
	}
	edge := &Edge{From: sourceID, To: targetID, ToSlot: slot, buf: buf}

	g.forward[sourceID] = append(g.forward[sourceID], targetID)
	g.reverse[targetID] = append(g.reverse[targetID], sourceID)
	g.outEdges[sourceID] = append(g.outEdges[sourceID], edge)
	g.inEdges[targetID] = append(g.inEdges[targetID], edge)

	src.SetOutputs(toOutputs(g.outEdges[sourceID]))
	_ = dst // dst's own outputs are unaffected by an incoming edge
	return nil
}

func toOutputs(edges []*Edge) []operator.Output {
	out := make([]operator.Output, len(edges))
	for i, e := range edges {
		out[i] = e
	}
	return out
}

// RemoveOperator erases the node and scrubs every occurrence of id from
// every adjacency list, forward and reverse, along with its edges.
func (g *ExecutionGraph) RemoveOperator(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.operators, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	delete(g.forward, id)
	delete(g.reverse, id)
	delete(g.outEdges, id)
	delete(g.inEdges, id)

	for other, succs := range g.forward {
		g.forward[other] = removeAll(succs, id)
	}
	for other, preds := range g.reverse {
		g.reverse[other] = removeAll(preds, id)
	}
	for other, edges := range g.outEdges {
		g.outEdges[other] = removeEdgesTo(edges, id)
		if op, ok := g.operators[other]; ok {
			op.SetOutputs(toOutputs(g.outEdges[other]))
		}
	}
	for other, edges := range g.inEdges {
		g.inEdges[other] = removeEdgesFrom(edges, id)
	}
}

func removeAll(ids []uint64, target uint64) []uint64 {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func removeEdgesTo(edges []*Edge, target uint64) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.To != target {
			out = append(out, e)
		}
	}
	return out
}

func removeEdgesFrom(edges []*Edge, target uint64) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e.From != target {
			out = append(out, e)
		}
	}
	return out
}

// TopologicalOrder computes a depth-first post-order and reverses it. Ties
// are broken by visiting successors in connection order, then by
// operator-ID ascending among unvisited roots, so the order is
// deterministic for a fixed construction sequence. If a cycle is detected
// (a node reachable from itself), it returns an empty slice as a sentinel.
func (g *ExecutionGraph) TopologicalOrder() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topologicalOrderLocked()
}

func (g *ExecutionGraph) topologicalOrderLocked() []uint64 {
	roots := make([]uint64, 0, len(g.operators))
	for id := range g.operators {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[uint64]int, len(g.operators))
	var postOrder []uint64
	cyclic := false

	var visit func(id uint64)
	visit = func(id uint64) {
		if cyclic {
			return
		}
		switch state[id] {
		case visited:
			return
		case visiting:
			cyclic = true
			return
		}
		state[id] = visiting
		for _, next := range g.forward[id] {
			visit(next)
			if cyclic {
				return
			}
		}
		state[id] = visited
		postOrder = append(postOrder, id)
	}

	for _, root := range roots {
		if state[root] == unvisited {
			visit(root)
		}
		if cyclic {
			return nil
		}
	}

	// Reverse post-order.
	for i, j := 0, len(postOrder)-1; i < j; i, j = i+1, j-1 {
		postOrder[i], postOrder[j] = postOrder[j], postOrder[i]
	}
	return postOrder
}

// Validate reports true iff TopologicalOrder yields a non-empty slice or
// the graph is empty.
func (g *ExecutionGraph) Validate() bool {
	g.mu.RLock()
	empty := len(g.operators) == 0
	g.mu.RUnlock()
	if empty {
		return true
	}
	return len(g.TopologicalOrder()) > 0
}

// Sources returns operators with empty reverse adjacency.
func (g *ExecutionGraph) Sources() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []uint64
	for _, id := range g.order {
		if len(g.reverse[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Sinks returns operators with empty forward adjacency.
func (g *ExecutionGraph) Sinks() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []uint64
	for _, id := range g.order {
		if len(g.forward[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

func (g *ExecutionGraph) Predecessors(id uint64) []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uint64(nil), g.reverse[id]...)
}

func (g *ExecutionGraph) Successors(id uint64) []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]uint64(nil), g.forward[id]...)
}

func (g *ExecutionGraph) Operator(id uint64) (operator.Operator, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	op, ok := g.operators[id]
	return op, ok
}

// Operators returns every operator in registration order.
func (g *ExecutionGraph) Operators() []operator.Operator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]operator.Operator, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.operators[id])
	}
	return out
}

// InEdges returns the incoming edges for id, in connection order.
func (g *ExecutionGraph) InEdges(id uint64) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Edge(nil), g.inEdges[id]...)
}

// IsEmpty reports whether the graph has no operators.
func (g *ExecutionGraph) IsEmpty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.operators) == 0
}

type unknownOperatorError struct{ id uint64 }

func (e unknownOperatorError) Error() string {
	return fmt.Sprintf("graph: unknown operator id %d", e.id)
}

func unknownOperator(id uint64) error { return unknownOperatorError{id: id} }
