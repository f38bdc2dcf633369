package operator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/pkg/buffer"
)

// DefaultJoinBufferCapacity bounds each side's pending-message queue when a
// join operator is constructed without an explicit capacity.
const DefaultJoinBufferCapacity = 256

// Join holds one bounded FIFO per input slot (0 = left, 1 = right); on
// every call it pushes the incoming message to its slot's buffer, and once
// both buffers are non-empty it dequeues one pair and invokes the
// function's two-input entry point.
type Join struct {
	base
	fn        function.Join
	mu        sync.Mutex
	left      buffer.Buffer[*message.Message]
	right     buffer.Buffer[*message.Message]
}

// NewJoin constructs a join operator with per-side buffers of the given
// capacity, blocking writers on overflow.
func NewJoin(id uint64, name string, fn function.Join, capacity int, logger *slog.Logger) (*Join, error) {
	if capacity <= 0 {
		capacity = DefaultJoinBufferCapacity
	}
	left, err := buffer.NewCircularBuffer[*message.Message](capacity, buffer.WithOverflowPolicy[*message.Message](buffer.Block))
	if err != nil {
		return nil, err
	}
	right, err := buffer.NewCircularBuffer[*message.Message](capacity, buffer.WithOverflowPolicy[*message.Message](buffer.Block))
	if err != nil {
		return nil, err
	}
	return &Join{
		base:  newBase(id, name, function.KindJoin, logger),
		fn:    fn,
		left:  left,
		right: right,
	}, nil
}

func (j *Join) Open(ctx context.Context) error  { j.opened.Store(true); return nil }
func (j *Join) Close(ctx context.Context) error {
	if j.closed.Swap(true) {
		return nil
	}
	_ = j.left.Close()
	_ = j.right.Close()
	return nil
}

// Process pushes in onto the buffer for slot (0 = left, 1 = right) and, if
// a pair is now available, drains one from each side and invokes the
// function. slot values other than 0/1 are a configuration error.
func (j *Join) Process(ctx context.Context, in *message.Message, slot int) (bool, error) {
	if j.fn == nil {
		return false, j.notConfigured()
	}
	if slot != 0 && slot != 1 {
		return false, j.recordError(function.KindJoin, errJoinSlot)
	}

	j.mu.Lock()
	if in != nil {
		var target buffer.Buffer[*message.Message]
		if slot == 0 {
			target = j.left
		} else {
			target = j.right
		}
		if err := target.Write(in); err != nil {
			j.mu.Unlock()
			return false, j.recordError(function.KindJoin, err)
		}
	}

	if j.left.IsEmpty() || j.right.IsEmpty() {
		j.mu.Unlock()
		return false, nil
	}
	leftMsg, _ := j.left.Read()
	rightMsg, _ := j.right.Read()
	j.mu.Unlock()

	j.processed.Add(1)
	resp, err := j.fn.ExecutePair(ctx, leftMsg, rightMsg)
	if err != nil {
		return false, j.recordError(function.KindJoin, err)
	}
	return j.emit(resp), nil
}

var errJoinSlot = joinSlotError{}

type joinSlotError struct{}

func (joinSlotError) Error() string { return "join operator received input on slot other than 0/1" }
