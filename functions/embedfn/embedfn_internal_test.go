package embedfn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/message"
	"github.com/c360/streamkit/pkg/cache"
)

func TestCacheAdapterRoundTrip(t *testing.T) {
	lru, err := cache.NewLRU[[]float32](8)
	require.NoError(t, err)
	adapter := &cacheAdapter{lru: lru}

	_, err = adapter.Get(context.Background(), "missing")
	assert.Error(t, err)

	require.NoError(t, adapter.Put(context.Background(), "hash-a", []float32{1, 2, 3}))

	vec, err := adapter.Get(context.Background(), "hash-a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestDurableModeRequiresAllBuckets(t *testing.T) {
	_, err := New(Config{Durable: true, BaseURL: "http://localhost:8082", Model: "test-model"})
	assert.Error(t, err)
}

func TestOfflineModeUsesLexicalEmbedder(t *testing.T) {
	fn, err := New(Config{Offline: true, Dimensions: 32})
	require.NoError(t, err)
	defer fn.Close()

	in := message.NewFunctionResponse()
	in.Add(message.New(1, message.TextContent("streaming dataflow engine")))

	out, err := fn.Execute(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 1, out.Size())

	vec, ok := out.At(0).Content().Vector()
	require.True(t, ok)
	assert.Len(t, vec, 32)
}
