// Package main is the CLI entry point for the agent sidecar: a local HTTP
// service that brokers chat sessions between a host application and LLM
// providers, executes tool calls against the host's own API, and enforces
// human-in-the-loop confirmation and post-hoc verification along the way.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/forgehq/sidecar/internal/auth"
	"github.com/forgehq/sidecar/internal/config"
	"github.com/forgehq/sidecar/internal/drift"
	"github.com/forgehq/sidecar/internal/hitl"
	"github.com/forgehq/sidecar/internal/httpapi"
	"github.com/forgehq/sidecar/internal/lifecycle"
	"github.com/forgehq/sidecar/internal/observability"
	"github.com/forgehq/sidecar/internal/registry"
	"github.com/forgehq/sidecar/internal/store"
	"github.com/forgehq/sidecar/internal/toolexec"
	"github.com/forgehq/sidecar/internal/verifier"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agent-sidecar",
		Short:        "Local HTTP sidecar brokering chat sessions between a host app and LLM providers",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var (
		configPath   string
		sqlitePath   string
		widgetDir    string
		verifiersDir string
		lockPath     string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sidecar HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveOpts{
				configPath:   configPath,
				sqlitePath:   sqlitePath,
				widgetDir:    widgetDir,
				verifiersDir: verifiersDir,
				lockPath:     lockPath,
				debug:        debug,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "forge.config.json", "Path to the sidecar JSON config file")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "forge-sidecar.db", "SQLite file used when DATABASE_URL is unset")
	cmd.Flags().StringVar(&widgetDir, "widget-dir", "", "Directory of static confirmation-widget assets served at /widget/")
	cmd.Flags().StringVar(&verifiersDir, "verifiers-dir", "", "Directory containing custom verifier plugins")
	cmd.Flags().StringVar(&lockPath, "lock-file", ".forge-sidecar.lock", "Path to the advisory startup lock file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

type serveOpts struct {
	configPath   string
	sqlitePath   string
	widgetDir    string
	verifiersDir string
	lockPath     string
	debug        bool
}

// runServe loads config and env, opens the shared database, wires every
// collaborator, and serves until SIGINT/SIGTERM or DELETE /shutdown.
func runServe(ctx context.Context, opts serveOpts) error {
	logLevel := "info"
	if opts.debug {
		logLevel = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: logLevel, Format: "json"})
	metrics := observability.NewMetrics()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := config.LoadEnv()

	db, dialect, err := openDatabase(env, opts.sqlitePath, cfg.Sidecar.Enabled)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := store.EnsureConversationSchema(ctx, db, dialect); err != nil {
		return err
	}
	if err := store.EnsurePreferenceSchema(ctx, db, dialect); err != nil {
		return err
	}

	var redisClient *redis.Client
	if env.RedisURL != "" {
		redisOpts, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
	}

	conversations, err := buildConversationStore(cfg, db, dialect, redisClient)
	if err != nil {
		return fmt.Errorf("build conversation store: %w", err)
	}
	preferences := store.NewSQLPreferenceStore(db, dialect)

	reg := registry.New(db, logger)
	executor := toolexec.New(reg, cfg.API.BaseURL)

	verifierDefs, verifierBindings, err := verifier.LoadRegistry(ctx, db)
	if err != nil {
		return fmt.Errorf("load verifier registry: %w", err)
	}
	verifierRunner := verifier.NewRunner(verifierDefs, verifierBindings, opts.verifiersDir, verifier.NewSQLResultSink(db), logger)

	hitlBackend, err := buildHITLBackend(ctx, db, dialect, redisClient)
	if err != nil {
		return fmt.Errorf("build hitl backend: %w", err)
	}
	hitlEngine := hitl.NewEngine(hitlBackend, hitl.DefaultTTL)

	signingKey := env.JWTSigningKey
	if signingKey == "" {
		signingKey = cfg.Auth.SigningKey
	}
	jwtVerifier := auth.NewVerifier(auth.Mode(cfg.Auth.Mode), signingKey, cfg.Auth.ClaimsPath)

	adminKey := env.AdminKey
	if adminKey == "" {
		adminKey = cfg.AdminKey
	}
	adminVerifier := auth.NewAdminVerifier(adminKey)

	lock, err := lifecycle.AcquireLock(opts.lockPath, cfg.Sidecar.Port)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer lock.Release()

	queue := lifecycle.NewQueue()

	shutdownCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	sh := lifecycle.NewShutdown(cancel)

	// Sidecar mode runs continuously behind a supervisor and owns drift
	// detection; standalone mode self-terminates after a period of
	// inactivity instead, and skips the drift loop entirely.
	var watchdog *lifecycle.Watchdog
	var driftMonitor *drift.Monitor
	driftCtx, driftCancel := context.WithCancel(context.Background())
	defer driftCancel()
	if cfg.Sidecar.Enabled {
		driftMonitor = drift.NewMonitor(drift.New(db), logger, metrics, cfg.Drift.Threshold, cfg.Drift.WindowSize, drift.DefaultTickInterval)
		go driftMonitor.Run(driftCtx)
	} else {
		watchdog = lifecycle.NewWatchdog(cancel)
		defer watchdog.Stop()
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Config:        cfg,
		Env:           env,
		Logger:        logger,
		Metrics:       metrics,
		JWTVerifier:   jwtVerifier,
		AdminVerifier: adminVerifier,
		MCPKey:        env.MCPKey,
		Registry:      reg,
		Executor:      executor,
		HITL:          hitlEngine,
		Verifier:      verifierRunner,
		Conversations: conversations,
		Preferences:   preferences,
		Queue:         queue,
		Shutdown:      sh,
		Watchdog:      watchdog,
		WidgetDir:     opts.widgetDir,
		StartedAt:     time.Now(),
	})

	addr := fmt.Sprintf(":%d", cfg.Sidecar.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "agent-sidecar: http server error", "error", err)
		}
	}()
	logger.Info(ctx, "agent-sidecar: listening", "addr", addr, "sidecar_mode", cfg.Sidecar.Enabled)

	select {
	case <-shutdownCtx.Done():
	case <-sh.Done():
	}
	logger.Info(ctx, "agent-sidecar: shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		logger.Warn(ctx, "agent-sidecar: http shutdown error", "error", err)
	}
	return nil
}

// loadConfig falls back to config.Default() when path does not exist, so
// the sidecar can start with zero setup beyond environment variables.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return config.Config{}, err
	}
	return cfg, nil
}

// openDatabase prefers a Postgres connection via DATABASE_URL; with none
// configured it falls back to a local SQLite file, enabling WAL mode when
// running as a long-lived sidecar so request handlers and the drift monitor
// don't serialize on each other's writes.
func openDatabase(env config.Env, sqlitePath string, sidecarMode bool) (*sql.DB, store.Dialect, error) {
	if env.DatabaseURL != "" {
		db, err := sql.Open("postgres", env.DatabaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("ping postgres: %w", err)
		}
		return db, store.DialectPostgres, nil
	}

	db, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite: %w", err)
	}
	if sidecarMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, "", fmt.Errorf("enable sqlite wal: %w", err)
		}
	}
	return db, store.DialectSQLite, nil
}

// buildConversationStore honors the configured backend, falling back to the
// shared SQL database's own dialect for both the sqlite and postgres cases.
func buildConversationStore(cfg config.Config, db *sql.DB, dialect store.Dialect, redisClient *redis.Client) (store.ConversationStore, error) {
	if cfg.Conversation.Store == config.ConversationRedis {
		if redisClient == nil {
			return nil, fmt.Errorf("conversation.store is redis but REDIS_URL is unset")
		}
		return store.NewRedisConversationStore(redisClient, cfg.Conversation.Window), nil
	}
	return store.NewSQLConversationStore(db, dialect, cfg.Conversation.Window), nil
}

// buildHITLBackend picks Redis over the shared SQL database over an
// in-process map, matching internal/hitl.Engine's documented backend
// priority. The SQL backend uses its own Dialect enum, distinct from
// internal/store's, since it predates and doesn't depend on that package.
func buildHITLBackend(ctx context.Context, db *sql.DB, dialect store.Dialect, redisClient *redis.Client) (hitl.Backend, error) {
	if redisClient != nil {
		return hitl.NewRedisBackend(redisClient), nil
	}

	hitlDialect := hitl.DialectSQLite
	if dialect == store.DialectPostgres {
		hitlDialect = hitl.DialectPostgres
	}
	if err := hitl.EnsureSchema(ctx, db, hitlDialect); err != nil {
		return nil, err
	}
	return hitl.NewSQLBackend(db, hitlDialect), nil
}
