package wssink_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamkit/functions/wssink"
	"github.com/c360/streamkit/message"
)

func TestExecuteBroadcastsTextToConnectedClient(t *testing.T) {
	fn := wssink.New(wssink.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, fn.Init(context.Background()))
	defer fn.Close(context.Background())

	url := "ws://" + fn.Addr() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the accept goroutine a moment to register the client
	time.Sleep(50 * time.Millisecond)

	in := message.NewFunctionResponse()
	in.Add(message.New(1, message.TextContent("hello clients")))

	_, err = fn.Execute(context.Background(), in)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "hello clients"))
}

func TestExecuteIgnoresNonTextContent(t *testing.T) {
	fn := wssink.New(wssink.Config{Addr: "127.0.0.1:0"})
	require.NoError(t, fn.Init(context.Background()))
	defer fn.Close(context.Background())

	in := message.NewFunctionResponse()
	in.Add(message.New(1, message.EmbeddingContent([]float32{1, 2})))

	out, err := fn.Execute(context.Background(), in)
	require.NoError(t, err)
	require.True(t, out.IsEmpty())
}
