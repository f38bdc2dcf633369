package ratelimit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/functions/ratelimit"
	"github.com/c360/streamkit/message"
)

func TestExecuteDropsMessagesBeyondBurst(t *testing.T) {
	fn := ratelimit.New(ratelimit.Config{PerSecond: 0, Burst: 2})

	in := message.NewFunctionResponse()
	for i := 0; i < 5; i++ {
		in.Add(message.New(uint64(i+1), message.TextContent("x")))
	}

	out, err := fn.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Size())
}

func TestExecutePassesEverythingUnderCapacity(t *testing.T) {
	fn := ratelimit.New(ratelimit.Config{PerSecond: 1000, Burst: 1000})

	in := message.NewFunctionResponse()
	for i := 0; i < 10; i++ {
		in.Add(message.New(uint64(i+1), message.TextContent("x")))
	}

	out, err := fn.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Size())
}
