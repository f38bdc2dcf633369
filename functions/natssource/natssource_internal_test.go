package natssource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteDrainsBufferedPayloadsAsText(t *testing.T) {
	fn := New(Config{Subject: "events.raw"})
	fn.pending = [][]byte{[]byte("hello"), []byte("world")}

	out, err := fn.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Size())

	text, ok := out.At(0).Content().Text()
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	subject, ok := out.At(0).Metadata().Get("nats.subject")
	require.True(t, ok)
	assert.Equal(t, "events.raw", subject)

	assert.Empty(t, fn.pending)
}

func TestExecuteDecodesBinaryWhenConfigured(t *testing.T) {
	fn := New(Config{Subject: "events.raw", Binary: true})
	fn.pending = [][]byte{{0x01, 0x02}}

	out, err := fn.Execute(context.Background(), nil)
	require.NoError(t, err)

	data, ok := out.At(0).Content().Bytes()
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, data)
}

func TestHasNextFalseAfterClose(t *testing.T) {
	fn := New(Config{Subject: "events.raw"})
	assert.True(t, fn.HasNext())

	require.NoError(t, fn.Close(context.Background()))
	assert.False(t, fn.HasNext())
}
