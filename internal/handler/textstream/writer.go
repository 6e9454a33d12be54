// Package textstream writes chunked plain-text responses.
package textstream

import (
	"fmt"
	"net/http"
)

// Writer streams plain text to one client. Headers are sent with the first
// chunk, so the handler can still answer with an error status until then.
type Writer struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

// NewWriter wraps w
func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether any chunk was written
func (s *Writer) Started() bool {
	return s.started
}

// Write sends one chunk and flushes it to the client
func (s *Writer) Write(text string) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := fmt.Fprint(s.w, text); err != nil {
		return fmt.Errorf("write chunk failed: %w", err)
	}

	// recorders and some proxies cannot flush; the chunk is still written
	if err := s.rc.Flush(); err != nil && err != http.ErrNotSupported {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}
