// Package upstream dials the realtime AI endpoint for each call.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/callbridge/pkg/gateway/live/protocol"
)

const (
	defaultConnectTimeout = 10 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

// DialError is returned when the endpoint refuses the websocket handshake.
type DialError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("dial realtime endpoint %s (status %d): %s", e.URL, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("dial realtime endpoint %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("dial realtime endpoint %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

type Dialer struct {
	URL            string
	APIKey         string
	ConnectTimeout time.Duration

	// WS overrides the gorilla dialer; nil uses a copy of websocket.DefaultDialer.
	WS *websocket.Dialer
}

// Headers returns the handshake headers sent to the realtime endpoint.
func (d Dialer) Headers() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+d.APIKey)
	h.Set(protocol.RealtimeBetaHeader, protocol.RealtimeBetaHeaderValue)
	return h
}

// Dial opens one realtime session. The handshake is bounded by ConnectTimeout
// unless ctx already carries an earlier deadline.
func (d Dialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	if strings.TrimSpace(d.URL) == "" {
		return nil, fmt.Errorf("realtime url is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := d.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base := d.WS
	if base == nil {
		base = websocket.DefaultDialer
	}
	ws := *base
	ws.HandshakeTimeout = timeout

	conn, resp, err := ws.DialContext(dialCtx, d.URL, d.Headers())
	if err != nil {
		dialErr := &DialError{URL: d.URL, Err: err}
		if resp != nil {
			dialErr.StatusCode = resp.StatusCode
			if resp.Body != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
				_ = resp.Body.Close()
				dialErr.Body = strings.TrimSpace(string(body))
			}
		}
		return nil, dialErr
	}
	return conn, nil
}
