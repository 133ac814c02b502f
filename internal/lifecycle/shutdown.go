package lifecycle

import "sync"

// Shutdown coordinates graceful termination triggered by DELETE /shutdown:
// the handler calls Trigger and responds 200 before the process actually
// exits, so the caller sees {ok: true} even though exit follows shortly
// after.
type Shutdown struct {
	once    sync.Once
	ch      chan struct{}
	onFinal func()
}

// NewShutdown builds a Shutdown. onFinal runs exactly once, the first time
// Trigger is called.
func NewShutdown(onFinal func()) *Shutdown {
	return &Shutdown{ch: make(chan struct{}), onFinal: onFinal}
}

// Trigger begins graceful termination. Safe to call multiple times.
func (s *Shutdown) Trigger() {
	s.once.Do(func() {
		close(s.ch)
		if s.onFinal != nil {
			s.onFinal()
		}
	})
}

// Done returns a channel closed once Trigger has run.
func (s *Shutdown) Done() <-chan struct{} {
	return s.ch
}
