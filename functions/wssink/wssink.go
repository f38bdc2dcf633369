// Package wssink implements a Sink function that broadcasts every message it
// receives to all currently connected WebSocket clients.
package wssink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/c360/streamkit/function"
	"github.com/c360/streamkit/message"
)

// Config configures the WebSocket broadcast sink.
type Config struct {
	Addr   string
	Path   string
	Logger *slog.Logger
}

// client pairs a connection with the mutex gorilla/websocket requires around
// concurrent writes to the same connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Function upgrades incoming HTTP connections to WebSocket and fans out
// every sink message to all of them as a text frame, one client after
// another with no write deadline, so a slow client delays the broadcast. A
// client whose write fails is dropped.
type Function struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}

	listener net.Listener
}

// New builds a WebSocket broadcast sink listening on the configured address.
func New(cfg Config) *Function {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	return &Function{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (f *Function) Kind() function.Kind { return function.KindSink }

// Init binds a listener on the configured address (an empty or ":0" address
// picks an ephemeral port, discoverable via Addr) and starts serving
// WebSocket upgrade requests.
func (f *Function) Init(_ context.Context) error {
	ln, err := net.Listen("tcp", f.cfg.Addr)
	if err != nil {
		return fmt.Errorf("wssink: listen: %w", err)
	}
	f.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(f.cfg.Path, f.handleUpgrade)
	f.server = &http.Server{Handler: mux}

	go func() {
		if err := f.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			f.logger.Warn("wssink: server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listener's actual bound address, useful when Config.Addr
// requested an ephemeral port.
func (f *Function) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

func (f *Function) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("wssink: upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	// Drain and discard client frames so the connection's read pump keeps
	// the peer's TCP window open; this sink only ever writes.
	go func() {
		defer f.removeClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (f *Function) removeClient(c *client) {
	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
	c.conn.Close()
}

// Execute broadcasts every message's textual payload to all connected
// clients and always returns an empty response, per the Sink contract.
func (f *Function) Execute(_ context.Context, in *message.FunctionResponse) (*message.FunctionResponse, error) {
	for _, msg := range in.Messages() {
		if msg == nil {
			continue
		}
		text, ok := msg.Content().Text()
		if !ok {
			continue
		}
		f.broadcast([]byte(text))
	}
	return message.NewFunctionResponse(), nil
}

func (f *Function) broadcast(data []byte) {
	f.mu.Lock()
	targets := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			f.removeClient(c)
		}
	}
}

// Close shuts down the HTTP server and drops all connected clients.
func (f *Function) Close(ctx context.Context) error {
	f.mu.Lock()
	for c := range f.clients {
		c.conn.Close()
	}
	f.clients = make(map[*client]struct{})
	f.mu.Unlock()

	if f.server == nil {
		return nil
	}
	return f.server.Shutdown(ctx)
}
