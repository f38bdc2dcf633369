package operator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/operator"
)

// keepEven retains only messages whose ID is even, unmodified, per Filter's
// subsequence contract.
type keepEven struct{}

func (keepEven) Kind() function.Kind { return function.KindFilter }
func (keepEven) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	for _, m := range in.Messages() {
		if m.ID()%2 == 0 {
			out.Add(m)
		}
	}
	return out, nil
}

// overEager violates the 0-or-1 output contract on purpose, to exercise
// trimToOne.
type overEager struct{}

func (overEager) Kind() function.Kind { return function.KindFilter }
func (overEager) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	out.Add(message.New(1, message.TextContent("a")))
	out.Add(message.New(2, message.TextContent("b")))
	return out, nil
}

func TestFilterDropsRejectedMessage(t *testing.T) {
	op := operator.NewFilter(1, "even", keepEven{}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("odd")), 0)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Empty(t, out.received)
}

func TestFilterForwardsRetainedMessageUnmodified(t *testing.T) {
	op := operator.NewFilter(2, "even", keepEven{}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	in := message.New(2, message.TextContent("even"))
	emitted, err := op.Process(context.Background(), in, 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 1)
	assert.Same(t, in, out.received[0])
}

func TestFilterTrimsMisbehavingFunctionToOne(t *testing.T) {
	op := operator.NewFilter(3, "over-eager", overEager{}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	assert.Len(t, out.received, 1, "filter must enforce at most one output even if the function returns more")
}

func TestFilterNotConfiguredWhenFunctionMissing(t *testing.T) {
	op := operator.NewFilter(4, "empty", nil, nil)
	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("x")), 0)
	assert.False(t, emitted)
	assert.Error(t, err)
}
