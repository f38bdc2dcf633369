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

// splitWords flat-maps one message of space-separated words into one
// message per word.
type splitWords struct{}

func (splitWords) Kind() function.Kind { return function.KindFlatMap }
func (splitWords) Execute(ctx context.Context, in *message.Message) (*message.FunctionResponse, error) {
	text, _ := in.Content().Text()
	out := message.NewFunctionResponse()
	for i, word := range strings.Fields(text) {
		out.Add(message.New(in.ID()*100+uint64(i), message.TextContent(word)))
	}
	return out, nil
}

func TestFlatMapEmitsZeroOrMorePerInput(t *testing.T) {
	op := operator.NewFlatMap(1, "split", splitWords{}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("a bb ccc")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 3)

	emitted, err = op.Process(context.Background(), message.New(2, message.TextContent("")), 0)
	require.NoError(t, err)
	assert.False(t, emitted, "flat map over an empty payload emits nothing")
}

// firstCharKey keys a message by its first character.
type firstCharKey struct{}

func (firstCharKey) Kind() function.Kind { return function.KindKeyBy }
func (firstCharKey) Key(ctx context.Context, msg *message.Message) (string, error) {
	text, _ := msg.Content().Text()
	if text == "" {
		return "", nil
	}
	return text[:1], nil
}

func TestKeyByTagsMessageWithPartitionKey(t *testing.T) {
	op := operator.NewKeyBy(1, "key", firstCharKey{}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("apple")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 1)
	key, ok := out.received[0].Metadata().Get(operator.PartitionKeyMetadata)
	require.True(t, ok)
	assert.Equal(t, "a", key)
}

// fixedWindow fires once it has buffered a fixed count of messages.
type fixedWindow struct {
	size int
}

func (fixedWindow) Kind() function.Kind { return function.KindWindow }
func (w fixedWindow) Ready(buffered int) bool { return buffered >= w.size }
func (w fixedWindow) Execute(ctx context.Context, window []*message.Message) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	out.Add(message.New(uint64(len(window)), message.TextContent("window-fired")))
	return out, nil
}

func TestWindowBuffersUntilReadyThenFlushes(t *testing.T) {
	op := operator.NewWindow(1, "win", fixedWindow{size: 3}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	for i := 0; i < 2; i++ {
		emitted, err := op.Process(context.Background(), message.New(uint64(i), message.TextContent("x")), 0)
		require.NoError(t, err)
		assert.False(t, emitted, "window must not fire before its Ready threshold")
	}

	emitted, err := op.Process(context.Background(), message.New(2, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 1)

	// The buffer resets after firing: one more input alone must not fire again.
	emitted, err = op.Process(context.Background(), message.New(3, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.False(t, emitted, "window buffer must reset after flushing")
}

// countAggregate accumulates a running count and is ready every n messages.
type countAggregate struct {
	n     int
	count int
}

func (a *countAggregate) Kind() function.Kind { return function.KindAggregate }
func (a *countAggregate) Accumulate(ctx context.Context, msg *message.Message) error {
	a.count++
	return nil
}
func (a *countAggregate) Ready() bool { return a.count > 0 && a.count%a.n == 0 }
func (a *countAggregate) Emit(ctx context.Context) (*message.FunctionResponse, error) {
	out := message.NewFunctionResponse()
	out.Add(message.New(uint64(a.count), message.TextContent("summary")))
	return out, nil
}

func TestAggregateAccumulatesAndEmitsWhenReady(t *testing.T) {
	fn := &countAggregate{n: 2}
	op := operator.NewAggregate(1, "agg", fn, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(1, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.False(t, emitted)

	emitted, err = op.Process(context.Background(), message.New(2, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, out.received, 1)
	assert.EqualValues(t, 2, out.received[0].ID())
}

// scoreByID scores a message by its own numeric ID, for deterministic
// ranking assertions.
type scoreByID struct{ k int }

func (s scoreByID) Kind() function.Kind { return function.KindTopK }
func (s scoreByID) Score(ctx context.Context, msg *message.Message) (float64, error) {
	return float64(msg.ID()), nil
}
func (s scoreByID) K() int { return s.k }

func TestTopKKeepsHighestScoringMessages(t *testing.T) {
	op := operator.NewTopK(1, "top2", scoreByID{k: 2}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	for _, id := range []uint64{3, 1, 5, 2} {
		_, err := op.Process(context.Background(), message.New(id, message.TextContent("x")), 0)
		require.NoError(t, err)
	}

	require.NotEmpty(t, out.received)
	// The final broadcast reflects the current top 2 by score: {5, 3}.
	ids := make([]uint64, 0, 2)
	for _, m := range out.received[len(out.received)-2:] {
		ids = append(ids, m.ID())
	}
	assert.ElementsMatch(t, []uint64{5, 3}, ids)
}

func TestITopKSkipsResortWhenScoreDoesNotMakeCut(t *testing.T) {
	op := operator.NewITopK(2, "itop1", scoreByID{k: 1}, nil)
	out := &recordingOutput{}
	op.SetOutputs([]operator.Output{out})

	emitted, err := op.Process(context.Background(), message.New(10, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.True(t, emitted)

	emitted, err = op.Process(context.Background(), message.New(1, message.TextContent("x")), 0)
	require.NoError(t, err)
	assert.False(t, emitted, "a message that doesn't beat the current top-1 must not trigger a re-emit")

	require.Len(t, out.received, 1)
	assert.EqualValues(t, 10, out.received[0].ID())
}
