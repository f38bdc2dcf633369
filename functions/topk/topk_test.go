package topk_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/functions/topk"
	"github.com/c360/streamkit/message"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := topk.New(topk.Config{Reference: []float32{1, 0}, K: 0})
	assert.Error(t, err)

	_, err = topk.New(topk.Config{Reference: nil, K: 3})
	assert.Error(t, err)
}

func TestScoreRanksByCosineSimilarity(t *testing.T) {
	fn, err := topk.New(topk.Config{Reference: []float32{1, 0}, K: 2})
	require.NoError(t, err)

	aligned := message.New(1, message.EmbeddingContent([]float32{1, 0}))
	orthogonal := message.New(2, message.EmbeddingContent([]float32{0, 1}))

	scoreAligned, err := fn.Score(context.Background(), aligned)
	require.NoError(t, err)
	scoreOrthogonal, err := fn.Score(context.Background(), orthogonal)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, scoreAligned, 1e-9)
	assert.InDelta(t, 0.0, scoreOrthogonal, 1e-9)
	assert.Greater(t, scoreAligned, scoreOrthogonal)
}

func TestScoreNonEmbeddingContentIsZero(t *testing.T) {
	fn, err := topk.New(topk.Config{Reference: []float32{1, 0}, K: 1})
	require.NoError(t, err)

	textMsg := message.New(1, message.TextContent("not a vector"))
	score, err := fn.Score(context.Background(), textMsg)
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestK(t *testing.T) {
	fn, err := topk.New(topk.Config{Reference: []float32{1}, K: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, fn.K())
}

func TestNewRejectsMissingReferenceAndProvider(t *testing.T) {
	_, err := topk.New(topk.Config{K: 1})
	assert.Error(t, err)
}

func TestReferenceProviderIsCachedAcrossScoreCalls(t *testing.T) {
	var calls atomic.Int32
	fn, err := topk.New(topk.Config{
		K:            1,
		ReferenceTTL: time.Minute,
		ReferenceProvider: func(context.Context) ([]float32, error) {
			calls.Add(1)
			return []float32{1, 0}, nil
		},
	})
	require.NoError(t, err)
	defer fn.Close()

	aligned := message.New(1, message.EmbeddingContent([]float32{1, 0}))
	for i := 0; i < 3; i++ {
		score, err := fn.Score(context.Background(), aligned)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, score, 1e-9)
	}

	assert.EqualValues(t, 1, calls.Load(), "the provider must not be called again while the cached reference is still fresh")
}
