package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// sseSink writes Server-Sent Event frames and flushes after each one. It
// satisfies jobstream.Sink.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// startSSE sends the event-stream headers and lifts the server write
// deadline for this connection; stream lifetime is bounded by the handler.
func startSSE(w http.ResponseWriter) *sseSink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	_ = rc.Flush()
	return &sseSink{w: w, rc: rc}
}

// Data writes v as one `data: <json>` frame.
func (s *sseSink) Data(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: encode: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	return s.flush()
}

// Comment writes a `: text` frame that clients ignore.
func (s *sseSink) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.flush()
}

func (s *sseSink) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
