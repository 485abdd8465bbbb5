package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/adaptation-atlas/atlas-assistant/pkg/models"
)

// Framing selects how Outbound Messages are delimited.
type Framing int

const (
	NDJSON Framing = iota
	EventStream
)

// FramingFor picks the framing requested by an Accept header.
func FramingFor(accept string) Framing {
	if strings.Contains(accept, "text/event-stream") {
		return EventStream
	}
	return NDJSON
}

// ContentType is the response media type for the framing.
func (f Framing) ContentType() string {
	if f == EventStream {
		return "text/event-stream"
	}
	return "application/x-ndjson"
}

// Frame serializes one Outbound Message.
func (f Framing) Frame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if f == EventStream {
		frame := make([]byte, 0, len(data)+8)
		frame = append(frame, "data: "...)
		frame = append(frame, data...)
		return append(frame, '\n', '\n'), nil
	}
	return append(data, '\n'), nil
}

// Stream writes Outbound Messages to an HTTP response. Headers are written
// with the first frame, so the caller can still send a plain error response
// while Started reports false.
type Stream struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	framing  Framing
	threadID string
	started  bool
	sent     int
}

// NewStream creates a stream for threadID.
func NewStream(w http.ResponseWriter, framing Framing, threadID string) *Stream {
	flusher, _ := w.(http.Flusher)
	return &Stream{w: w, flusher: flusher, framing: framing, threadID: threadID}
}

// Started reports whether the response headers have been written.
func (s *Stream) Started() bool { return s.started }

// Sent returns the number of frames written.
func (s *Stream) Sent() int { return s.sent }

// Send converts and writes each message, skipping those Convert drops.
func (s *Stream) Send(messages ...models.ChatMessage) error {
	for _, msg := range messages {
		out, ok := Convert(msg, s.threadID)
		if !ok {
			continue
		}
		if err := s.write(out); err != nil {
			return err
		}
	}
	return nil
}

// SendError writes one error frame.
func (s *Stream) SendError(content string) error {
	return s.write(NewError(s.threadID, content))
}

func (s *Stream) write(v any) error {
	frame, err := s.framing.Frame(v)
	if err != nil {
		return err
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", s.framing.ContentType())
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		if s.framing == EventStream {
			h.Set("Connection", "keep-alive")
		}
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.sent++
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
