// Package twiml renders the call-control documents returned to the
// telephony provider's voice webhook.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net"
	"strings"
)

const MediaStreamPath = "/media-stream"

type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type Connect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  Stream
}

type Stream struct {
	XMLName xml.Name `xml:"Stream"`
	URL     string   `xml:"url,attr"`
}

// ConnectCall is the document that greets the caller and then bridges the
// call audio to streamURL.
func ConnectCall(greeting, readyPrompt, streamURL string) Response {
	return Response{Verbs: []any{
		Say{Text: greeting},
		Pause{Length: 1},
		Say{Text: readyPrompt},
		Connect{Stream: Stream{URL: streamURL}},
	}}
}

// MediaStreamURL builds the secure websocket URL the provider dials for the
// media stream. Any port on host is dropped.
func MediaStreamURL(host string) string {
	return "wss://" + StripPort(host) + MediaStreamPath
}

// StripPort returns host without a trailing :port. IPv6 brackets are kept.
func StripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

func (r Response) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("encode twiml: %w", err)
	}
	return buf.Bytes(), nil
}
