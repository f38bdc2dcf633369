// Package function defines the business-logic contracts an operator
// delegates to. A function receives and returns a message.FunctionResponse;
// the operator that owns it is responsible for all flow control.
package function

import (
	"context"

	"github.com/c360/streamkit/message"
)

// Kind identifies which cardinality contract a function implements. The set
// is closed, so operators are concrete types per kind rather than a single
// polymorphic type.
type Kind int

const (
	KindSource Kind = iota
	KindMap
	KindFilter
	KindSink
	KindFlatMap
	KindKeyBy
	KindWindow
	KindAggregate
	KindJoin
	KindTopK
	KindITopK
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindMap:
		return "map"
	case KindFilter:
		return "filter"
	case KindSink:
		return "sink"
	case KindFlatMap:
		return "flat_map"
	case KindKeyBy:
		return "key_by"
	case KindWindow:
		return "window"
	case KindAggregate:
		return "aggregate"
	case KindJoin:
		return "join"
	case KindTopK:
		return "top_k"
	case KindITopK:
		return "i_top_k"
	default:
		return "unknown"
	}
}

// Function is the common supertype every variant satisfies, used where code
// only needs to know which kind it is holding (e.g. the builder's
// operator-registration validation).
type Function interface {
	Kind() Kind
}

// Source produces messages from outside the graph. has_next is sampled by
// the engine between invocations to detect exhaustion.
type Source interface {
	Function
	Init(ctx context.Context) error
	Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error)
	HasNext() bool
	Close(ctx context.Context) error
}

// Map returns exactly as many messages as it received, order preserved. A
// nil entry at a position removes that message from the output.
type Map interface {
	Function
	Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error)
}

// Filter returns a subsequence of the input in original order; retained
// messages must be forwarded unmodified.
type Filter interface {
	Function
	Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error)
}

// Sink consumes all input and always returns an empty response.
type Sink interface {
	Function
	Init(ctx context.Context) error
	Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error)
	Close(ctx context.Context) error
}

// Join is the only variant with a two-input entry point; the engine invokes
// ExecutePair only on join operators, once a message is available on each
// side's buffer.
type Join interface {
	Function
	ExecutePair(ctx context.Context, left, right *message.Message) (*message.FunctionResponse, error)
}

// FlatMap returns zero or more output messages per input message, unlike
// Map's one-to-one contract.
type FlatMap interface {
	Function
	Execute(ctx context.Context, in *message.Message) (*message.FunctionResponse, error)
}

// KeyBy computes a partition key for a message; the operator tags the
// message with it (as metadata) rather than routing it, since this core has
// no physical partitioning/shuffle.
type KeyBy interface {
	Function
	Key(ctx context.Context, msg *message.Message) (string, error)
}

// Window groups buffered messages into a window and is asked whether a
// window is ready to fire given the current buffered count.
type Window interface {
	Function
	Ready(buffered int) bool
	Execute(ctx context.Context, window []*message.Message) (*message.FunctionResponse, error)
}

// Aggregate accumulates messages into running state and periodically emits
// a summary; Emit is called by the operator whenever Ready reports true.
type Aggregate interface {
	Function
	Accumulate(ctx context.Context, msg *message.Message) error
	Ready() bool
	Emit(ctx context.Context) (*message.FunctionResponse, error)
}

// TopK scores each message against a ranking criterion; the operator
// maintains the top K by score. ITopK is the incremental variant: Score is
// called on every arrival and the operator keeps the ranking up to date
// without rescanning, rather than only flushing at window boundaries.
type TopK interface {
	Function
	Score(ctx context.Context, msg *message.Message) (float64, error)
	K() int
}

// ITopK is identical in contract to TopK; it exists as a distinct Kind so
// the operator can select an incremental maintenance strategy instead of
// TopK's batch-rescan one.
type ITopK interface {
	TopK
}
