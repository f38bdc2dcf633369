package message_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/message"
)

func TestMessageContentVariants(t *testing.T) {
	m := message.New(1, message.TextContent("hello"))
	text, ok := m.Content().Text()
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	_, ok = m.Content().Bytes()
	assert.False(t, ok)

	img := message.New(2, message.ImageContent([]byte{1, 2, 3}))
	b, ok := img.Content().Bytes()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, b)

	vec := message.New(3, message.EmbeddingContent([]float32{0.1, 0.2}))
	v, ok := vec.Content().Vector()
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, v)
}

func TestMessageMetadataOrderPreserved(t *testing.T) {
	m := message.New(1, message.TextContent("x"))
	m.SetMetadata("b", "2")
	m.SetMetadata("a", "1")
	m.SetMetadata("b", "20") // update keeps position

	entries := m.Metadata().Entries()
	want := []message.MetadataEntry{
		{Key: "b", Value: "20"},
		{Key: "a", Value: "1"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("metadata entries mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageQualityRange(t *testing.T) {
	m := message.New(1, message.TextContent("x"))
	require.NoError(t, m.SetQuality(0.5))
	q, ok := m.Quality()
	require.True(t, ok)
	assert.Equal(t, 0.5, q)

	assert.Error(t, m.SetQuality(1.5))
	assert.Error(t, m.SetQuality(-0.1))
}

func TestMessageCloneAssignsFreshIdentity(t *testing.T) {
	orig := message.New(1, message.TextContent("x"))
	orig.SetMetadata("k", "v")
	orig.AddTrace("source")

	clone := orig.Clone(2)
	assert.Equal(t, uint64(2), clone.ID())
	assert.NotEqual(t, orig.ID(), clone.ID())
	assert.Equal(t, orig.Trace(), clone.Trace())

	clone.AddTrace("map")
	assert.NotEqual(t, orig.Trace(), clone.Trace(), "clone's trace must not alias the original's")
}

func TestFunctionResponseOrderingAndClear(t *testing.T) {
	r := message.NewFunctionResponse()
	assert.True(t, r.IsEmpty())

	r.Add(message.New(1, message.TextContent("a")))
	r.Add(message.New(2, message.TextContent("b")))
	require.Equal(t, 2, r.Size())
	assert.Equal(t, uint64(1), r.At(0).ID())
	assert.Equal(t, uint64(2), r.At(1).ID())

	r.Clear()
	assert.True(t, r.IsEmpty())
	assert.Nil(t, r.At(0))
}
