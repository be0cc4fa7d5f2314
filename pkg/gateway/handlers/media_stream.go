package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-go/callbridge/pkg/gateway/config"
	"github.com/vango-go/callbridge/pkg/gateway/live/protocol"
	"github.com/vango-go/callbridge/pkg/gateway/live/session"
	"github.com/vango-go/callbridge/pkg/gateway/live/sessions"
	"github.com/vango-go/callbridge/pkg/gateway/mw"
)

const closeFrameTimeout = time.Second

// RealtimeDialer opens the outbound leg of a call.
type RealtimeDialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// CallObserver receives relay events plus failed endpoint handshakes.
type CallObserver interface {
	session.Observer
	RecordDialFailure()
}

// MediaStreamHandler accepts the telephony media stream, dials the realtime
// endpoint, and relays the call until either side hangs up.
type MediaStreamHandler struct {
	Config   config.Config
	Dialer   RealtimeDialer
	Logger   *slog.Logger
	Calls    *sessions.Tracker
	Observer CallObserver
}

func (h MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Calls.Draining() {
		mw.WriteJSONError(w, r, http.StatusServiceUnavailable, &mw.Error{
			Type:    "overloaded_error",
			Message: "gateway is draining",
			Code:    "draining",
		})
		return
	}
	if h.Dialer == nil {
		mw.WriteJSONError(w, r, http.StatusInternalServerError, &mw.Error{Type: "api_error", Message: "realtime dialer is not configured"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	inbound, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID, _ := mw.RequestIDFrom(r.Context())
	callID := "call_" + uuid.NewString()
	logger = logger.With("request_id", reqID)
	logger.Info("telephony stream connected", "call_id", callID)

	outbound, err := h.Dialer.Dial(r.Context())
	if err != nil {
		logger.Error("realtime endpoint dial failed", "call_id", callID, "error", err)
		if h.Observer != nil {
			h.Observer.RecordDialFailure()
		}
		rejectLeg(inbound, websocket.ClosePolicyViolation, "realtime endpoint unavailable")
		return
	}

	update := protocol.NewSessionUpdate(protocol.SessionSettings{
		Voice:        h.Config.Voice,
		Instructions: h.Config.Instructions,
		Temperature:  h.Config.Temperature,
	})
	deps := session.Dependencies{
		Inbound:       inbound,
		Outbound:      outbound,
		Logger:        logger,
		CallID:        callID,
		SessionUpdate: &update,
		Config: session.Config{
			KeepAliveInterval: h.Config.KeepAliveInterval,
			WriteTimeout:      h.Config.WSWriteTimeout,
			MaxCallDuration:   h.Config.MaxCallDuration,
			MaxMessageBytes:   h.Config.WSMaxMessageBytes,
		},
	}
	if h.Observer != nil {
		deps.Observer = h.Observer
	}
	relay, err := session.New(deps)
	if err != nil {
		logger.Error("create call relay", "call_id", callID, "error", err)
		rejectLeg(inbound, websocket.CloseInternalServerErr, "internal error")
		rejectLeg(outbound, websocket.CloseNormalClosure, "")
		return
	}

	unregister, err := h.Calls.Register(callID, sessions.Handle{
		Cancel:    relay.Cancel,
		StreamSid: relay.StreamSid,
	})
	if err != nil {
		if errors.Is(err, sessions.ErrDraining) {
			logger.Info("rejecting call while draining", "call_id", callID)
		}
		rejectLeg(inbound, websocket.CloseTryAgainLater, "gateway is draining")
		rejectLeg(outbound, websocket.CloseNormalClosure, "")
		return
	}
	defer unregister()

	if err := relay.Run(r.Context()); err != nil {
		logger.Warn("call relay ended with error", "call_id", callID, "error", err)
	}
}

func rejectLeg(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeFrameTimeout))
	_ = conn.Close()
}
