package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEWriterSetsHeadersAndFramesEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, ok := newSSEWriter(rec)
	if !ok {
		t.Fatal("newSSEWriter returned ok=false for a recorder that implements http.Flusher")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	if err := sse.Send("text", map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: text\ndata: ") {
		t.Errorf("body = %q, want an `event: text` frame", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("body = %q, want frame terminated by a blank line", body)
	}
}

func TestSSEWriterSanitizesEventName(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, _ := newSSEWriter(rec)

	if err := sse.Send("weird:name\nwith\rbreaks", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !strings.Contains(rec.Body.String(), "event: weird_name_with_breaks\n") {
		t.Errorf("body = %q, want sanitized event name", rec.Body.String())
	}
}
