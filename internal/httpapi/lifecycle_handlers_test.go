package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forgehq/sidecar/internal/lifecycle"
)

func TestHandleHealthReportsQueueStatus(t *testing.T) {
	deps := testDeps()
	deps.StartedAt = time.Now().Add(-5 * time.Second)
	s := NewServer(deps)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestEnqueueNextComplete(t *testing.T) {
	s := NewServer(testDeps())

	enqueueRec := httptest.NewRecorder()
	enqueueReq := httptest.NewRequest(http.MethodPost, "/enqueue", strings.NewReader(`{"payload":{"n":1}}`))
	s.ServeHTTP(enqueueRec, enqueueReq)
	if enqueueRec.Code != http.StatusOK {
		t.Fatalf("enqueue status = %d, want 200", enqueueRec.Code)
	}

	nextRec := httptest.NewRecorder()
	nextReq := httptest.NewRequest(http.MethodGet, "/next", nil)
	s.ServeHTTP(nextRec, nextReq)
	if nextRec.Code != http.StatusOK {
		t.Fatalf("next status = %d, want 200", nextRec.Code)
	}

	completeRec := httptest.NewRecorder()
	completeReq := httptest.NewRequest(http.MethodPost, "/complete", nil)
	s.ServeHTTP(completeRec, completeReq)
	if completeRec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, want 200", completeRec.Code)
	}
}

func TestNextTimesOutWithNoContent(t *testing.T) {
	s := NewServer(testDeps())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/next", nil).WithContext(ctx)
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestShutdownRespondsBeforeTriggering(t *testing.T) {
	deps := testDeps()
	triggered := make(chan struct{})
	deps.Shutdown = lifecycle.NewShutdown(func() { close(triggered) })
	s := NewServer(deps)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/shutdown", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("shutdown trigger never ran")
	}
}
