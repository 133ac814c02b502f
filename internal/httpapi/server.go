// Package httpapi wires every HTTP-facing collaborator (auth, stores, the
// ReAct loop, the drift-aware queue/watchdog lifecycle) into a single
// http.Handler: health and internal-queue endpoints, the MCP bridge, the
// chat/resume SSE surface, preference and admin config CRUD, and static
// widget serving.
package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/config"
	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/lifecycle"
	"github.com/forgehq/sidecar/internal/observability"
	"github.com/forgehq/sidecar/internal/registry"
	"github.com/forgehq/sidecar/internal/store"
	"github.com/forgehq/sidecar/internal/toolexec"
	"github.com/forgehq/sidecar/internal/verifier"
)

// maxBodyBytes caps every request body the router accepts.
const maxBodyBytes = 1 << 20 // 1 MiB

// Deps is every long-lived collaborator the router needs. Server borrows
// these; it never owns their lifecycle (callers close DB handles, stop the
// drift monitor, etc.).
type Deps struct {
	Config        config.Config
	Env           config.Env
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	JWTVerifier   *auth.Verifier
	AdminVerifier *auth.AdminVerifier
	MCPKey        string
	Registry      *registry.Store
	Executor      *toolexec.Executor
	HITL          *hitl.Engine
	Verifier      *verifier.Runner
	Conversations store.ConversationStore
	Preferences   store.PreferenceStore
	Queue         *lifecycle.Queue
	Shutdown      *lifecycle.Shutdown
	Watchdog      *lifecycle.Watchdog // nil in sidecar mode, where the watchdog is disabled
	WidgetDir     string
	StartedAt     time.Time
}

// Server is the sidecar's single http.Handler.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	// configMu guards the mutable subset of deps.Config the admin config
	// endpoint can change at runtime (defaultModel, defaultHitlLevel, the
	// two allowUser* gates); every other field is fixed at startup.
	configMu sync.RWMutex
}

// config returns a snapshot of the current (possibly admin-updated) config.
func (s *Server) config() config.Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	return s.deps.Config
}

// updateConfig applies fn to a copy of the current config under the write
// lock and stores the result.
func (s *Server) updateConfig(fn func(*config.Config)) config.Config {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	fn(&s.deps.Config)
	return s.deps.Config
}

// NewServer builds a Server and registers every route.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watchdog != nil {
		s.deps.Watchdog.Ping()
	}
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start).Seconds())
	}
}

// statusRecorder captures the status code a handler wrote so it can be
// reported to metrics after the fact; it still implements http.Flusher so
// SSE handlers underneath it keep working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) routes() {
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /enqueue", s.limited(s.handleEnqueue))
	s.mux.HandleFunc("GET /next", s.handleNext)
	s.mux.HandleFunc("POST /complete", s.handleComplete)
	s.mux.HandleFunc("DELETE /shutdown", s.handleShutdown)

	s.mux.HandleFunc("POST /mcp", s.limited(s.handleMCP))

	s.mux.HandleFunc("POST /agent-api/chat", s.limited(s.requireJWT(s.handleChat)))
	s.mux.HandleFunc("POST /agent-api/chat/resume", s.limited(s.requireJWT(s.handleChatResume)))
	s.mux.HandleFunc("GET /agent-api/user/preferences", s.requireJWT(s.handleGetPreferences))
	s.mux.HandleFunc("PUT /agent-api/user/preferences", s.limited(s.requireJWT(s.handlePutPreferences)))

	s.mux.HandleFunc("GET /forge-admin/config", s.requireAdmin(s.handleGetAdminConfig))
	s.mux.HandleFunc("PUT /forge-admin/config", s.limited(s.requireAdmin(s.handlePutAdminConfig)))

	s.mux.HandleFunc("GET /widget/", s.handleWidget)
}

// limited caps the request body at maxBodyBytes; a handler that reads past
// the limit gets an io error from its Decoder instead of an unbounded read.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next(w, r)
	}
}
