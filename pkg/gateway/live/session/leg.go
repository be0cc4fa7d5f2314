package session

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLegClosed is returned by writes on a leg that has already been closed.
var ErrLegClosed = errors.New("call leg closed")

const closeFrameTimeout = time.Second

// Conn is the subset of *websocket.Conn used by the relay.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// leg is one side of a call. Writes are serialized; Close is idempotent and
// safe to call from any goroutine.
type leg struct {
	conn         Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func newLeg(conn Conn, writeTimeout time.Duration) *leg {
	return &leg{conn: conn, writeTimeout: writeTimeout}
}

func (l *leg) Open() bool {
	return !l.closed.Load()
}

func (l *leg) read() ([]byte, error) {
	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (l *leg) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.closed.Load() {
		return ErrLegClosed
	}
	if l.writeTimeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
			return err
		}
	}
	return l.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a normal-closure frame and closes the socket, which unblocks any
// reader parked in ReadMessage.
func (l *leg) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		_ = l.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeFrameTimeout))
		_ = l.conn.Close()
	})
}

// isDisconnect reports whether a read error is an ordinary hang-up rather
// than a transport failure.
func isDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
