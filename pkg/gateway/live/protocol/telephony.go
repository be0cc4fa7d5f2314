package protocol

import (
	"encoding/json"
	"strings"
)

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
)

// TelephonyStart is the "start" event; StreamSid identifies the call leg for
// every frame we send back.
type TelephonyStart struct {
	StreamSid string
}

type TelephonyStop struct{}

// TelephonyMedia carries one base64 μ-law frame from the caller.
type TelephonyMedia struct {
	Payload string
}

// TelephonyUnknown is any event the relay does not act on (connected, mark, ...).
type TelephonyUnknown struct {
	Event string
}

type inboundEnvelope struct {
	Event string `json:"event"`
	Start *struct {
		StreamSid string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

// OutboundMedia is the telephony "media" event written back to the caller.
type OutboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

type MediaPayload struct {
	Payload string `json:"payload"`
}

// ClassifyTelephonyEvent decodes one text frame from the telephony leg into
// TelephonyStart, TelephonyStop, TelephonyMedia or TelephonyUnknown.
// Frames that are not valid JSON return a *DecodeError.
func ClassifyTelephonyEvent(data []byte) (any, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("invalid json frame", "")
	}

	event := strings.TrimSpace(env.Event)
	switch event {
	case EventStart:
		if env.Start == nil || strings.TrimSpace(env.Start.StreamSid) == "" {
			return nil, badRequest("start.streamSid is required", "start.streamSid")
		}
		return TelephonyStart{StreamSid: strings.TrimSpace(env.Start.StreamSid)}, nil
	case EventMedia:
		if env.Media == nil {
			return nil, badRequest("media.payload is required", "media.payload")
		}
		return TelephonyMedia{Payload: env.Media.Payload}, nil
	case EventStop:
		return TelephonyStop{}, nil
	default:
		return TelephonyUnknown{Event: event}, nil
	}
}

// ToInboundMedia wraps endpoint audio for the telephony leg. The payload is
// passed through unchanged.
func ToInboundMedia(streamSid, payload string) (OutboundMedia, error) {
	if strings.TrimSpace(streamSid) == "" {
		return OutboundMedia{}, ErrUnattributableFrame
	}
	return OutboundMedia{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     MediaPayload{Payload: payload},
	}, nil
}
