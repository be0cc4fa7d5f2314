package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vango-go/callbridge/pkg/gateway/config"
	"github.com/vango-go/callbridge/pkg/gateway/mw"
	"github.com/vango-go/callbridge/pkg/gateway/twiml"
)

// IncomingCallHandler answers the voice webhook with a document that greets
// the caller and connects the call audio to /media-stream on this host.
type IncomingCallHandler struct {
	Config config.Config
	Logger *slog.Logger
}

func (h IncomingCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}

	streamURL := twiml.MediaStreamURL(publicHost(r, h.Config.TrustProxyHeaders))
	doc, err := twiml.ConnectCall(h.Config.Greeting, h.Config.ReadyPrompt, streamURL).Render()
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("render call document", "error", err)
		}
		mw.WriteJSONError(w, r, http.StatusInternalServerError, &mw.Error{Type: "api_error", Message: "internal error"})
		return
	}

	if h.Logger != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.Logger.Info("incoming call", "request_id", reqID, "call_sid", r.FormValue("CallSid"), "stream_url", streamURL)
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// publicHost is the host the provider reached us on. Behind a trusted proxy
// the first X-Forwarded-Host entry wins over the Host header.
func publicHost(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				fwd = fwd[:i]
			}
			if fwd = strings.TrimSpace(fwd); fwd != "" {
				return fwd
			}
		}
	}
	return r.Host
}
