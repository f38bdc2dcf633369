package natssink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/message"
)

func TestPayloadEncodesTextAndBinary(t *testing.T) {
	text, err := payload(message.TextContent("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), text)

	bin, err := payload(message.BinaryContent([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bin)
}

func TestPayloadRejectsUnpublishableContent(t *testing.T) {
	_, err := payload(message.EmbeddingContent([]float32{1, 2}))
	assert.Error(t, err)
}
