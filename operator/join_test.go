package operator_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/operator"
)

// concatJoin pairs one left and one right message into a single combined
// message, recording how many pairs it has produced.
type concatJoin struct {
	pairs int
}

func (*concatJoin) Kind() function.Kind { return function.KindJoin }
func (c *concatJoin) ExecutePair(ctx context.Context, left, right *message.Message) (*message.FunctionResponse, error) {
	c.pairs++
	leftText, _ := left.Content().Text()
	rightText, _ := right.Content().Text()
	out := message.NewFunctionResponse()
	out.Add(message.New(left.ID(), message.TextContent(fmt.Sprintf("%s+%s", leftText, rightText))))
	return out, nil
}

func TestJoinBuffersUntilBothSidesHaveAMessage(t *testing.T) {
	fn := &concatJoin{}
	op, err := operator.NewJoin(1, "join", fn, 0, nil)
	require.NoError(t, err)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	// Only the left side has arrived; the pair isn't ready yet.
	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("L1")), 0)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Empty(t, out.received)
	assert.Equal(t, 0, fn.pairs)

	// The right side arrives; a pair is now available.
	emitted, err = op.Process(context.Background(), message.New(2, message.TextContent("R1")), 1)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 1)
	text, _ := out.received[0].Content().Text()
	assert.Equal(t, "L1+R1", text)
	assert.Equal(t, 1, fn.pairs)
}

func TestJoinDequeuesOldestPairFromEachSide(t *testing.T) {
	fn := &concatJoin{}
	op, err := operator.NewJoin(2, "join", fn, 0, nil)
	require.NoError(t, err)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	_, err = op.Process(context.Background(), message.New(1, message.TextContent("L1")), 0)
	require.NoError(t, err)
	_, err = op.Process(context.Background(), message.New(2, message.TextContent("L2")), 0)
	require.NoError(t, err)

	// Two lefts queued, no rights yet.
	assert.Empty(t, out.received)

	emitted, err := op.Process(context.Background(), message.New(3, message.TextContent("R1")), 1)
	require.NoError(t, err)
	assert.True(t, emitted)

	emitted, err = op.Process(context.Background(), message.New(4, message.TextContent("R2")), 1)
	require.NoError(t, err)
	assert.True(t, emitted)

	require.Len(t, out.received, 2)
	first, _ := out.received[0].Content().Text()
	second, _ := out.received[1].Content().Text()
	assert.Equal(t, "L1+R1", first, "join must pair FIFO, oldest-left with oldest-right")
	assert.Equal(t, "L2+R2", second)
	assert.Equal(t, 2, fn.pairs)
}

func TestJoinRejectsInvalidSlot(t *testing.T) {
	op, err := operator.NewJoin(3, "join", &concatJoin{}, 0, nil)
	require.NoError(t, err)

	_, err = op.Process(context.Background(), message.New(1, message.TextContent("x")), 2)
	assert.Error(t, err)
}

func TestJoinNotConfiguredWhenFunctionMissing(t *testing.T) {
	op, err := operator.NewJoin(4, "empty", nil, 0, nil)
	require.NoError(t, err)
	_, err = op.Process(context.Background(), message.New(1, message.TextContent("x")), 0)
	assert.Error(t, err)
}
