package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// sseEventSanitizer replaces the three bytes that would corrupt the
// `event: <name>` line with underscores.
var sseEventSanitizer = strings.NewReplacer("\n", "_", "\r", "_", ":", "_")

// sseWriter encodes events per the `event: <name>\ndata: <json>\n\n` wire
// shape and flushes after every write so SSE backpressure is visible to the
// caller immediately rather than buffered.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets the standard SSE headers and writes the 200 status
// line. ok is false if the ResponseWriter can't stream (no Flusher), in
// which case no bytes have been written yet.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

// Send writes one SSE frame. A write failure (client gone) is returned so
// the caller can abandon the loop.
func (s *sseWriter) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	name := sseEventSanitizer.Replace(event)
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
