package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vango-go/callbridge/pkg/gateway/live/protocol"
)

// keepAlive pings the endpoint leg so the realtime session is not reaped for
// inactivity. It never touches the telephony leg.
type keepAlive struct {
	leg      *leg
	interval time.Duration
	onSent   func()
}

func (k *keepAlive) Run(ctx context.Context) error {
	if k == nil || k.leg == nil {
		return nil
	}
	interval := k.interval
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := k.leg.writeJSON(protocol.Ping()); err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrLegClosed) {
					return nil
				}
				return fmt.Errorf("keep-alive ping: %w", err)
			}
			if k.onSent != nil {
				k.onSent()
			}
		}
	}
}
