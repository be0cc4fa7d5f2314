// Package session runs one phone call: it pairs the telephony media stream
// with a realtime endpoint connection and pumps audio both ways until either
// side hangs up.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vango-go/callbridge/pkg/gateway/live/protocol"
	"golang.org/x/sync/errgroup"
)

const (
	defaultKeepAliveInterval = 10 * time.Second
	defaultWriteTimeout      = 5 * time.Second
)

type State int32

const (
	StateInitializing State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Direction string

const (
	// DirectionInbound is caller audio travelling to the endpoint.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound is endpoint audio travelling to the caller.
	DirectionOutbound Direction = "outbound"
)

// Drop reasons reported to the Observer.
const (
	DropUnattributable = "unattributable"
	DropLegClosed      = "leg_closed"
	DropSendFailed     = "send_failed"
	DropMalformed      = "malformed"
)

// Session outcomes reported to the Observer.
const (
	OutcomeCompleted   = "completed"
	OutcomeError       = "error"
	OutcomeSetupFailed = "setup_failed"
)

// Observer receives relay events; it must be safe for concurrent use.
type Observer interface {
	SessionStarted()
	SessionEnded(outcome string, duration time.Duration)
	FrameRelayed(dir Direction, payloadBytes int)
	FrameDropped(dir Direction, reason string)
	KeepAliveSent()
}

type nopObserver struct{}

func (nopObserver) SessionStarted() {}
func (nopObserver) SessionEnded(string, time.Duration) {}
func (nopObserver) FrameRelayed(Direction, int) {}
func (nopObserver) FrameDropped(Direction, string) {}
func (nopObserver) KeepAliveSent() {}

type Config struct {
	KeepAliveInterval time.Duration
	WriteTimeout      time.Duration
	// MaxCallDuration bounds the whole call; zero disables the bound.
	MaxCallDuration time.Duration
	MaxMessageBytes int64
}

type Dependencies struct {
	// Inbound is the telephony media stream accepted by the gateway.
	Inbound Conn
	// Outbound is the realtime endpoint connection dialed for this call.
	Outbound Conn
	Logger   *slog.Logger
	Observer Observer
	CallID   string
	// SessionUpdate, when set, is written to Outbound before audio flows.
	SessionUpdate *protocol.SessionUpdate
	Config        Config
	Now           func() time.Time
}

// Relay owns both legs of one call for its whole lifetime.
type Relay struct {
	inbound  *leg
	outbound *leg
	logger   *slog.Logger
	observer Observer
	callID   string
	update   *protocol.SessionUpdate
	cfg      Config
	now      func() time.Time

	streamSid *streamSidCell
	state     atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	runOnce sync.Once
	done    chan struct{}
}

func New(deps Dependencies) (*Relay, error) {
	if deps.Inbound == nil {
		return nil, fmt.Errorf("inbound connection is required")
	}
	if deps.Outbound == nil {
		return nil, fmt.Errorf("outbound connection is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.CallID == "" {
		deps.CallID = uuid.NewString()
	}
	if deps.Config.KeepAliveInterval <= 0 {
		deps.Config.KeepAliveInterval = defaultKeepAliveInterval
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = defaultWriteTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		inbound:   newLeg(deps.Inbound, deps.Config.WriteTimeout),
		outbound:  newLeg(deps.Outbound, deps.Config.WriteTimeout),
		logger:    deps.Logger.With("call_id", deps.CallID),
		observer:  deps.Observer,
		callID:    deps.CallID,
		update:    deps.SessionUpdate,
		cfg:       deps.Config,
		now:       deps.Now,
		streamSid: newStreamSidCell(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.state.Store(int32(StateInitializing))
	return r, nil
}

func (r *Relay) CallID() string {
	return r.callID
}

// StreamSid returns the telephony stream identifier, or "" before the start
// event has been seen.
func (r *Relay) StreamSid() string {
	v, _ := r.streamSid.Get()
	return v
}

func (r *Relay) State() State {
	return State(r.state.Load())
}

// Done is closed after both pumps and the keep-alive have exited and both
// legs are closed.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Cancel ends the call from outside, e.g. on gateway shutdown.
func (r *Relay) Cancel() {
	if r == nil || r.cancel == nil {
		return
	}
	r.cancel()
}

// Run drives the call to completion. It may be called once; later calls
// return an error immediately.
func (r *Relay) Run(ctx context.Context) error {
	err := errors.New("relay already run")
	r.runOnce.Do(func() {
		err = r.run(ctx)
	})
	return err
}

func (r *Relay) run(parent context.Context) (err error) {
	startedAt := r.now()
	r.observer.SessionStarted()
	outcome := OutcomeCompleted
	defer func() {
		r.state.Store(int32(StateClosed))
		r.observer.SessionEnded(outcome, r.now().Sub(startedAt))
		close(r.done)
	}()

	ctx := r.ctx
	if parent != nil {
		stop := context.AfterFunc(parent, r.cancel)
		defer stop()
	}
	if r.cfg.MaxCallDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.MaxCallDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopClose := context.AfterFunc(ctx, r.closeLegs)
	defer stopClose()
	defer r.closeLegs()

	if r.cfg.MaxMessageBytes > 0 {
		r.inbound.conn.SetReadLimit(r.cfg.MaxMessageBytes)
		r.outbound.conn.SetReadLimit(r.cfg.MaxMessageBytes)
	}

	if r.update != nil {
		if err := r.outbound.writeJSON(r.update); err != nil {
			r.state.Store(int32(StateClosing))
			outcome = OutcomeSetupFailed
			return fmt.Errorf("send session update: %w", err)
		}
		r.logger.Info("session update sent", "voice", r.update.Session.Voice)
	}
	r.state.Store(int32(StateActive))
	r.logger.Info("call relay active")

	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return r.pumpInbound(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return r.pumpOutbound(ctx)
	})
	g.Go(func() error {
		ka := keepAlive{leg: r.outbound, interval: r.cfg.KeepAliveInterval, onSent: r.observer.KeepAliveSent}
		if err := ka.Run(ctx); err != nil {
			r.logger.Warn("keep-alive stopped", "error", err)
			return err
		}
		return nil
	})

	<-ctx.Done()
	r.state.Store(int32(StateClosing))
	err = g.Wait()
	if err != nil {
		outcome = OutcomeError
	}
	r.logger.Info("call relay closed", "stream_sid", r.StreamSid(), "duration_ms", r.now().Sub(startedAt).Milliseconds())
	return err
}

func (r *Relay) closeLegs() {
	r.inbound.Close()
	r.outbound.Close()
}

// pumpInbound relays caller audio to the endpoint. It returns when the
// telephony stream ends, a stop event arrives, or ctx is cancelled, and it
// always closes the endpoint leg on the way out.
func (r *Relay) pumpInbound(ctx context.Context) error {
	defer r.outbound.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := r.inbound.read()
		if err != nil {
			if ctx.Err() != nil || !r.inbound.Open() || isDisconnect(err) {
				r.logger.Info("telephony stream disconnected")
				return nil
			}
			return fmt.Errorf("read telephony leg: %w", err)
		}

		msg, err := protocol.ClassifyTelephonyEvent(data)
		if err != nil {
			r.logger.Warn("skipping malformed telephony message", "error", err)
			r.observer.FrameDropped(DirectionInbound, DropMalformed)
			continue
		}

		switch m := msg.(type) {
		case protocol.TelephonyStart:
			if r.streamSid.Set(m.StreamSid) {
				r.logger.Info("telephony stream started", "stream_sid", m.StreamSid)
			} else {
				current, _ := r.streamSid.Get()
				r.logger.Warn("ignoring repeated start event", "stream_sid", current, "ignored_stream_sid", m.StreamSid)
			}
		case protocol.TelephonyMedia:
			r.forwardToEndpoint(m.Payload)
		case protocol.TelephonyStop:
			r.logger.Info("telephony stream stopped", "stream_sid", r.StreamSid())
			return nil
		case protocol.TelephonyUnknown:
		}
	}
}

func (r *Relay) forwardToEndpoint(payload string) {
	msg, ok := protocol.ToOutboundAppend(payload)
	if !ok {
		return
	}
	if !r.outbound.Open() {
		r.observer.FrameDropped(DirectionInbound, DropLegClosed)
		return
	}
	if err := r.outbound.writeJSON(msg); err != nil {
		if errors.Is(err, ErrLegClosed) {
			r.observer.FrameDropped(DirectionInbound, DropLegClosed)
			return
		}
		r.logger.Warn("send to endpoint failed", "error", err)
		r.observer.FrameDropped(DirectionInbound, DropSendFailed)
		return
	}
	r.observer.FrameRelayed(DirectionInbound, len(payload))
}

// pumpOutbound relays endpoint audio to the caller. A single bad message or
// failed send is logged and skipped; only a disconnect or cancellation ends
// the pump. It closes the telephony leg on the way out.
func (r *Relay) pumpOutbound(ctx context.Context) error {
	defer r.inbound.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}
		data, err := r.outbound.read()
		if err != nil {
			if ctx.Err() != nil || !r.outbound.Open() || isDisconnect(err) {
				r.logger.Info("endpoint disconnected")
				return nil
			}
			return fmt.Errorf("read endpoint leg: %w", err)
		}

		msg, err := protocol.ClassifyEndpointEvent(data)
		if err != nil {
			r.logger.Warn("skipping malformed endpoint message", "error", err)
			r.observer.FrameDropped(DirectionOutbound, DropMalformed)
			continue
		}

		switch m := msg.(type) {
		case protocol.EndpointAudioDelta:
			r.forwardToCaller(m.Delta)
		case protocol.EndpointSessionUpdated:
			r.logger.Info("endpoint session updated")
		case protocol.EndpointNoteworthy:
			if m.Type == protocol.TypeError {
				r.logger.Warn("endpoint reported error", "event", string(m.Raw))
			} else {
				r.logger.Info("endpoint event", "type", m.Type)
			}
		case protocol.EndpointOther:
		}
	}
}

func (r *Relay) forwardToCaller(payload string) {
	streamSid, _ := r.streamSid.Get()
	msg, err := protocol.ToInboundMedia(streamSid, payload)
	if err != nil {
		r.logger.Debug("dropping endpoint audio before stream start", "error", err)
		r.observer.FrameDropped(DirectionOutbound, DropUnattributable)
		return
	}
	if err := r.inbound.writeJSON(msg); err != nil {
		if errors.Is(err, ErrLegClosed) {
			r.observer.FrameDropped(DirectionOutbound, DropLegClosed)
			return
		}
		r.logger.Warn("send to caller failed", "stream_sid", streamSid, "error", err)
		r.observer.FrameDropped(DirectionOutbound, DropSendFailed)
		return
	}
	r.observer.FrameRelayed(DirectionOutbound, len(payload))
}
