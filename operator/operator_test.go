package operator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/operator"
)

// recordingOutput is a test double implementing operator.Output.
type recordingOutput struct {
	received []*message.Message
}

func (r *recordingOutput) Write(msg *message.Message) error {
	r.received = append(r.received, msg)
	return nil
}

// sliceSource emits the given messages in order, then reports exhaustion.
type sliceSource struct {
	msgs []*message.Message
	next int
	initCalls, closeCalls int
}

func (s *sliceSource) Kind() function.Kind { return function.KindSource }
func (s *sliceSource) Init(ctx context.Context) error { s.initCalls++; return nil }
func (s *sliceSource) Close(ctx context.Context) error { s.closeCalls++; return nil }
func (s *sliceSource) HasNext() bool { return s.next < len(s.msgs) }
func (s *sliceSource) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	resp := message.NewFunctionResponse()
	if s.next < len(s.msgs) {
		resp.Add(s.msgs[s.next])
		s.next++
	}
	return resp, nil
}

type uppercaseMap struct{}

func (uppercaseMap) Kind() function.Kind { return function.KindMap }
func (uppercaseMap) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	for _, m := range in.Messages() {
		text, _ := m.Content().Text()
		next := m.Clone(m.ID())
		next.SetContent(message.TextContent(strings.ToUpper(text)))
		out.Add(next)
	}
	return out, nil
}

func TestSourceOperatorEmitsUntilExhausted(t *testing.T) {
	src := &sliceSource{msgs: []*message.Message{
		message.New(1, message.TextContent("a")),
		message.New(2, message.TextContent("b")),
	}}
	op := operator.NewSource(1, "src", src, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	require.NoError(t, op.Open(context.Background()))

	for src.HasNext() {
		emitted, err := op.Process(context.Background(), nil, 0)
		require.NoError(t, err)
		assert.True(t, emitted)
	}
	emitted, err := op.Process(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.False(t, emitted)

	require.NoError(t, op.Close(context.Background()))
	assert.Equal(t, 1, src.initCalls)
	assert.Equal(t, 1, src.closeCalls)
	assert.Len(t, out.received, 2)
	assert.EqualValues(t, 2, op.OutputCount())
}

func TestMapOperatorUppercases(t *testing.T) {
	op := operator.NewMap(2, "upper", uppercaseMap{}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("a")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 1)
	text, _ := out.received[0].Content().Text()
	assert.Equal(t, "A", text)
	assert.EqualValues(t, 1, op.ProcessedCount())
}

func TestOperatorNotConfiguredWhenFunctionMissing(t *testing.T) {
	op := operator.NewMap(3, "empty", nil, nil)
	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("a")), 0)
	assert.False(t, emitted)
	assert.Error(t, err)
}

func TestCounterMonotonicityAndReset(t *testing.T) {
	op := operator.NewMap(4, "counting", uppercaseMap{}, nil)
	op.SetOutputs([]operator.Output{&recordingOutput{}})
	for i := 0; i < 3; i++ {
		_, err := op.Process(context.Background(), message.New(uint64(i), message.TextContent("x")), 0)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, op.ProcessedCount())
	op.ResetCounters()
	assert.EqualValues(t, 0, op.ProcessedCount())
	assert.EqualValues(t, 0, op.OutputCount())
}
