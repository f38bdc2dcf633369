package builder_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/builder"
	"github.com/c360/streamkit/engine"
	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

type sliceSource struct {
	items []string
	next  int
}

func (s *sliceSource) Kind() function.Kind        { return function.KindSource }
func (s *sliceSource) Init(context.Context) error { return nil }
func (s *sliceSource) HasNext() bool              { return s.next < len(s.items) }
func (s *sliceSource) Close(context.Context) error { return nil }
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
		next := message.New(m.ID(), message.TextContent(strings.ToUpper(text)))
		out.Add(next)
	}
	return out, nil
}

type collectSink struct{ received []string }

func (s *collectSink) Kind() function.Kind        { return function.KindSink }
func (s *collectSink) Init(context.Context) error { return nil }
func (s *collectSink) Close(context.Context) error { return nil }
func (s *collectSink) Execute(ctx context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	for _, m := range in.Messages() {
		text, _ := m.Content().Text()
		s.received = append(s.received, text)
	}
	return message.NewFunctionResponse(), nil
}

func TestFluentChainUppercasePipeline(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	sink := &collectSink{}

	b := builder.New(eng, 0, nil).
		FromSource("src", &sliceSource{items: []string{"a", "bb", "ccc"}}).
		Map("upper", upperMap{}).
		Sink("collect", sink)

	require.NoError(t, b.Err())
	require.NoError(t, b.Execute(context.Background()))
	assert.Equal(t, []string{"A", "BB", "CCC"}, sink.received)
}

func TestChainRejectsIntermediateCallAfterSink(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	b := builder.New(eng, 0, nil).
		FromSource("src", &sliceSource{items: []string{"a"}}).
		Sink("collect", &collectSink{}).
		Map("too-late", upperMap{})

	assert.Error(t, b.Err())
}

func TestChainRejectsMapBeforeSource(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	b := builder.New(eng, 0, nil).Map("upper", upperMap{})
	assert.Error(t, b.Err())
}

func TestExecuteIdempotentGraphSubmission(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())
	sink := &collectSink{}
	b := builder.New(eng, 0, nil).
		FromSource("src", &sliceSource{items: []string{"a"}}).
		Sink("collect", sink)

	require.NoError(t, b.Execute(context.Background()))
	require.NoError(t, b.Execute(context.Background()))
}
