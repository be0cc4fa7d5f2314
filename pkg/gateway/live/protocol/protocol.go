// Package protocol holds the wire shapes of both call legs and the pure
// functions that translate between them: Twilio Media Streams on the
// telephony side and the OpenAI Realtime API on the endpoint side.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnattributableFrame is returned when endpoint audio arrives before the
// telephony stream has announced its streamSid.
var ErrUnattributableFrame = errors.New("unattributable frame: stream sid is not known yet")

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}
