package xapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"xapi/pkg/logging"
)

// fakeServer emulates the xAPI command and stream endpoints for one account type
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	commands []json.RawMessage
	respond  func(name string, raw json.RawMessage) any

	connections atomic.Int32
	rejects     atomic.Int32 // handshakes to refuse before upgrading
	streamIn    chan map[string]any
	streamConn  chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		t:          t,
		streamIn:   make(chan map[string]any, 64),
		streamConn: make(chan *websocket.Conn, 4),
	}
	fs.respond = defaultResponder

	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fs.rejects.Add(-1) >= 0 {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.connections.Add(1)
		defer conn.Close()

		if strings.HasSuffix(r.URL.Path, "Stream") {
			fs.serveStream(conn)
			return
		}
		fs.serveCommands(conn)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func defaultResponder(name string, _ json.RawMessage) any {
	if name == "login" {
		return map[string]any{"status": true, "streamSessionId": "tok-1"}
	}
	return map[string]any{"status": true, "returnData": map[string]any{"command": name}}
}

func (fs *fakeServer) serveCommands(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(msg, &cmd); err != nil {
			return
		}

		fs.mu.Lock()
		fs.commands = append(fs.commands, append(json.RawMessage(nil), msg...))
		respond := fs.respond
		fs.mu.Unlock()

		resp := respond(cmd.Command, msg)
		if resp == nil {
			// drop the connection without replying
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (fs *fakeServer) serveStream(conn *websocket.Conn) {
	fs.streamConn <- conn
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		fs.streamIn <- m
	}
}

func (fs *fakeServer) setResponder(f func(name string, raw json.RawMessage) any) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.respond = f
}

func (fs *fakeServer) received() []json.RawMessage {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]json.RawMessage(nil), fs.commands...)
}

func (fs *fakeServer) host() string {
	return strings.TrimPrefix(fs.srv.URL, "https://")
}

func (fs *fakeServer) options() Options {
	opts := DefaultOptions()
	opts.RequestInterval = 5 * time.Millisecond
	opts.RequestTimeout = time.Second
	opts.TLSConfig = fs.srv.Client().Transport.(*http.Transport).TLSClientConfig
	return opts
}

func (fs *fakeServer) acceptStream() *websocket.Conn {
	fs.t.Helper()
	select {
	case conn := <-fs.streamConn:
		return conn
	case <-time.After(2 * time.Second):
		fs.t.Fatal("stream connection not established")
		return nil
	}
}

func (fs *fakeServer) nextStreamCommand() map[string]any {
	fs.t.Helper()
	select {
	case m := <-fs.streamIn:
		return m
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no stream command received")
		return nil
	}
}

func push(t *testing.T, conn *websocket.Conn, topic string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"command": topic, "data": data}))
}

func testLogger() Logger {
	logger, _ := logging.NewZapLogger("DEBUG")
	return logger
}
