package session

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newConnPair returns both ends of a real websocket connection served by an
// in-process httptest server.
func newConnPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverCh := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of websocket")
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

func mustWriteText(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write %s: %v", raw, err)
	}
}

func mustReadText(t *testing.T, conn *websocket.Conn, timeout time.Duration) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func mustReadType(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	raw := mustReadText(t, conn, timeout)
	var msg map[string]any
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return msg
}

// readUntilType skips messages (pings, mostly) until one with the wanted type
// field arrives.
func readUntilType(t *testing.T, conn *websocket.Conn, field, want string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := mustReadType(t, conn, time.Until(deadline))
		if msg[field] == want {
			return msg
		}
	}
	t.Fatalf("no message with %s=%q within %v", field, want, timeout)
	return nil
}

func sendClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write close: %v", err)
	}
}

// expectClosed reads until the peer's close arrives.
func expectClosed(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection was not closed within %v", timeout)
		}
		return
	}
}

type fakeConn struct {
	reads chan []byte

	mu         sync.Mutex
	writes     []string
	failWrites int
	closed     bool
	closeCh    chan struct{}
	closeOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b, ok := <-c.reads:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return websocket.TextMessage, b, nil
	case <-c.closeCh:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	if c.failWrites > 0 {
		c.failWrites--
		return errors.New("write: broken pipe")
	}
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closeCh)
	})
	return nil
}

func (c *fakeConn) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	copy(out, c.writes)
	return out
}

type recordingObserver struct {
	mu         sync.Mutex
	started    int
	ended      []string
	relayed    map[Direction]int
	dropped    map[string]int
	keepAlives int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{relayed: make(map[Direction]int), dropped: make(map[string]int)}
}

func (o *recordingObserver) SessionStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) SessionEnded(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, outcome)
}

func (o *recordingObserver) FrameRelayed(dir Direction, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.relayed[dir]++
}

func (o *recordingObserver) FrameDropped(dir Direction, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[string(dir)+":"+reason]++
}

func (o *recordingObserver) KeepAliveSent() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keepAlives++
}

func (o *recordingObserver) droppedCount(dir Direction, reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[string(dir)+":"+reason]
}

func (o *recordingObserver) keepAliveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.keepAlives
}

func (o *recordingObserver) endedOutcomes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ended...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
