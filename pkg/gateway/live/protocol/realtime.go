package protocol

import (
	"encoding/json"
	"strings"
)

const (
	TypeSessionUpdate       = "session.update"
	TypeSessionUpdated      = "session.updated"
	TypeInputAudioAppend    = "input_audio_buffer.append"
	TypeResponseAudioDelta  = "response.audio.delta"
	TypePing                = "ping"
	TypeError               = "error"
	AudioFormatG711ULaw     = "g711_ulaw"
	TurnDetectionServerVAD  = "server_vad"
	ModalityText            = "text"
	ModalityAudio           = "audio"
	RealtimeBetaHeader      = "OpenAI-Beta"
	RealtimeBetaHeaderValue = "realtime=v1"
)

// noteworthyTypes are endpoint events that are logged but never forwarded.
var noteworthyTypes = map[string]struct{}{
	"response.content.done":             {},
	"rate_limits.updated":               {},
	"response.done":                     {},
	"input_audio_buffer.committed":      {},
	"input_audio_buffer.speech_stopped": {},
	"input_audio_buffer.speech_started": {},
	"session.created":                   {},
	TypeError:                           {},
}

// IsNoteworthy reports whether an endpoint event type is on the log allow-list.
func IsNoteworthy(eventType string) bool {
	_, ok := noteworthyTypes[eventType]
	return ok
}

type EndpointSessionUpdated struct {
	Raw json.RawMessage
}

// EndpointAudioDelta is a chunk of synthesized speech; Delta is base64 μ-law.
type EndpointAudioDelta struct {
	Delta string
}

type EndpointNoteworthy struct {
	Type string
	Raw  json.RawMessage
}

type EndpointOther struct {
	Type string
}

type endpointEnvelope struct {
	Type  string `json:"type"`
	Delta string `json:"delta,omitempty"`
}

// ClassifyEndpointEvent decodes one text frame from the realtime endpoint into
// EndpointSessionUpdated, EndpointAudioDelta, EndpointNoteworthy or
// EndpointOther. An audio delta without a delta field classifies as
// EndpointOther.
func ClassifyEndpointEvent(data []byte) (any, error) {
	var env endpointEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch {
	case typ == TypeSessionUpdated:
		return EndpointSessionUpdated{Raw: json.RawMessage(data)}, nil
	case typ == TypeResponseAudioDelta:
		if env.Delta == "" {
			return EndpointOther{Type: typ}, nil
		}
		return EndpointAudioDelta{Delta: env.Delta}, nil
	case IsNoteworthy(typ):
		return EndpointNoteworthy{Type: typ, Raw: json.RawMessage(data)}, nil
	default:
		return EndpointOther{Type: typ}, nil
	}
}

type InputAudioBufferAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ToOutboundAppend wraps a caller frame as input_audio_buffer.append. It
// returns false for an empty payload; callers skip those frames.
func ToOutboundAppend(payload string) (InputAudioBufferAppend, bool) {
	if payload == "" {
		return InputAudioBufferAppend{}, false
	}
	return InputAudioBufferAppend{Type: TypeInputAudioAppend, Audio: payload}, true
}

type PingMessage struct {
	Type string `json:"type"`
}

func Ping() PingMessage {
	return PingMessage{Type: TypePing}
}

// SessionSettings are the per-deployment knobs of the initial session.update.
type SessionSettings struct {
	Voice        string
	Instructions string
	Temperature  float64
}

type TurnDetection struct {
	Type string `json:"type"`
}

type SessionConfig struct {
	TurnDetection     TurnDetection `json:"turn_detection"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions"`
	Modalities        []string      `json:"modalities"`
	Temperature       float64       `json:"temperature"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate builds the first message sent after the endpoint handshake.
// Both directions are pinned to G.711 μ-law so telephony audio needs no
// transcoding.
func NewSessionUpdate(s SessionSettings) SessionUpdate {
	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionConfig{
			TurnDetection:     TurnDetection{Type: TurnDetectionServerVAD},
			InputAudioFormat:  AudioFormatG711ULaw,
			OutputAudioFormat: AudioFormatG711ULaw,
			Voice:             s.Voice,
			Instructions:      s.Instructions,
			Modalities:        []string{ModalityText, ModalityAudio},
			Temperature:       s.Temperature,
		},
	}
}
