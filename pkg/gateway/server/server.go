package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/callbridge/pkg/gateway/config"
	"github.com/vango-go/callbridge/pkg/gateway/handlers"
	"github.com/vango-go/callbridge/pkg/gateway/live/sessions"
	"github.com/vango-go/callbridge/pkg/gateway/metrics"
	"github.com/vango-go/callbridge/pkg/gateway/mw"
	"github.com/vango-go/callbridge/pkg/gateway/upstream"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	dialer  handlers.RealtimeDialer
	calls   *sessions.Tracker
	metrics *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		dialer: upstream.Dialer{
			URL:            cfg.RealtimeURL,
			APIKey:         cfg.OpenAIAPIKey,
			ConnectTimeout: cfg.UpstreamConnectTimeout,
		},
		calls:   sessions.NewTracker(),
		metrics: metrics.NewMetrics("callbridge"),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/{$}", s.metrics.Instrument("index", handlers.IndexHandler{}))
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Calls: s.calls})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/incoming-call", s.metrics.Instrument("incoming_call", handlers.IncomingCallHandler{
		Config: s.cfg,
		Logger: s.logger,
	}))
	s.mux.Handle("/media-stream", s.metrics.Instrument("media_stream", handlers.MediaStreamHandler{
		Config:   s.cfg,
		Dialer:   s.dialer,
		Logger:   s.logger,
		Calls:    s.calls,
		Observer: s.metrics,
	}))

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining stops new calls from being accepted and flips /readyz to 503.
// Calls already in flight keep running.
func (s *Server) SetDraining() {
	s.calls.Drain()
}

func (s *Server) ActiveCalls() []sessions.Call {
	return s.calls.Calls()
}

func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.calls.Wait(ctx)
}

func (s *Server) CancelLiveSessions() int {
	for _, c := range s.calls.Calls() {
		s.logger.Info("cancelling call", "call_id", c.CallID, "stream_sid", c.StreamSid, "started_at", c.StartedAt)
	}
	return s.calls.CancelAll()
}
