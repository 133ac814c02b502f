package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireLockWritesPayloadAndReleaseRemoves(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".forge-service.lock")

	lock, err := AcquireLock(path, 8001)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	var payload LockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal lock payload: %v", err)
	}
	if payload.Port != 8001 {
		t.Errorf("expected port 8001, got %d", payload.Port)
	}
	if payload.PID != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), payload.PID)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected lock file to be removed after Release")
	}
}

func TestAcquireLockSecondInstanceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".forge-service.lock")

	first, err := AcquireLock(path, 8001)
	if err != nil {
		t.Fatalf("AcquireLock (first): %v", err)
	}
	defer first.Release()

	if _, err := AcquireLock(path, 8002); err == nil {
		t.Fatal("expected second AcquireLock to fail while first holds the lock")
	}
}
