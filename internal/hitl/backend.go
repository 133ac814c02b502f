package hitl

import (
	"context"
	"sync"
	"time"
)

// Backend is the storage contract for pending HITL pause state. Save and
// Consume must compose into a one-time-use token: the first successful
// Consume for a token returns its state; every subsequent one (or any
// Consume after expiry) returns found=false.
type Backend interface {
	Save(ctx context.Context, token string, state []byte, expiresAt time.Time) error
	Consume(ctx context.Context, token string) (state []byte, found bool, err error)
}

// MemoryBackend is the in-process fallback backend, selected when none of
// Redis/Postgres/SQLite is configured. Not safe across processes.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memEntry
	stop    chan struct{}
}

type memEntry struct {
	state     []byte
	expiresAt time.Time
}

// ReapInterval is how often the memory backend proactively sweeps expired
// entries.
const ReapInterval = 60 * time.Second

// NewMemoryBackend starts the periodic reaper goroutine; call Close to stop
// it.
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}
	go b.reapLoop()
	return b
}

func (b *MemoryBackend) Save(_ context.Context, token string, state []byte, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[token] = memEntry{state: state, expiresAt: expiresAt}
	return nil
}

func (b *MemoryBackend) Consume(_ context.Context, token string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[token]
	delete(b.entries, token)
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.state, true, nil
}

func (b *MemoryBackend) reapLoop() {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.reapExpired()
		}
	}
}

func (b *MemoryBackend) reapExpired() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, entry := range b.entries {
		if now.After(entry.expiresAt) {
			delete(b.entries, token)
		}
	}
}

// Close stops the reaper goroutine.
func (b *MemoryBackend) Close() {
	close(b.stop)
}
