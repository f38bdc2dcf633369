// Package streamkit implements a small, in-process streaming dataflow
// engine: a directed graph of operators exchanging move-only messages,
// scheduled by a StreamEngine and assembled with a fluent builder.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│           StreamEngine              │  Submit / Execute / Stop
//	│   (scheduling mode, retry, metrics)  │  Graph lifecycle
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│          ExecutionGraph              │  Operators + typed edges
//	│   (topological order, validation)    │  Bounded FIFO per edge
//	└─────────────────────────────────────┘
//	           ↓ delegates business logic to
//	┌─────────────────────────────────────┐
//	│             Functions                │  Source, Map, Filter, Sink,
//	│  (Source/Map/Filter/Sink/Join/...)   │  Join, FlatMap, KeyBy, ...
//	└─────────────────────────────────────┘
//
// An Operator owns flow control — reading input edges, invoking its
// Function, writing output edges, tracking counters. A Function owns
// business logic only; it never touches the graph. This separation lets
// the same operator kind (say, Map) host arbitrary logic without the
// engine ever branching on what that logic does.
//
// # Messages
//
// A Message is a move-only record: unexported fields, no public struct
// literal, and Clone(newID) as the only sanctioned way to duplicate one.
// Its Content is a tagged variant (text, binary, image, audio, video,
// embedding, or bare metadata) selected by ContentKind; a FunctionResponse
// is the move-only ordered sequence of Messages an operator exchanges with
// its function on one invocation.
//
// # Scheduling
//
// StreamEngine runs a submitted graph in one of three Modes:
//
//   - SingleThreaded: one goroutine drives every operator in topological
//     order, round after round, until every source is exhausted and every
//     edge is empty.
//   - Pooled: each round's operators are dispatched onto a bounded worker
//     pool; errgroup waits for every operator's share of the round and
//     returns the first fatal error. The other operators are not cancelled.
//   - Async: runs the same sequential round as SingleThreaded.
//
// In every mode Execute blocks until the run ends, and ExecuteAsync returns
// at once with a channel that receives the run's result.
//
// A FunctionError is local — it is logged and the round continues. A
// FatalEngineError aborts the graph. A failing operator Open is retried with
// backoff; if it still fails, the operators already opened are closed and
// start-up aborts with a ResourceError.
//
// # Building a graph
//
// The builder package assembles a graph fluently:
//
//	err := builder.New(engine, 0, logger).
//		FromSource("ingest", mySource).
//		Filter("throttle", myFilter).
//		Map("transform", myMap).
//		Sink("emit", mySink).
//		Execute(ctx)
//
// Connect merges two independent chains through a Join operator, feeding
// its two input slots from each chain's tail.
package streamkit
