// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/izy/internal/api"
	"github.com/starford/izy/internal/assistant"
	"github.com/starford/izy/internal/bus"
	"github.com/starford/izy/internal/bus/wsport"
	"github.com/starford/izy/internal/correlate"
	"github.com/starford/izy/internal/envdetect"
	"github.com/starford/izy/internal/executor"
	"github.com/starford/izy/internal/mcpserver"
	"github.com/starford/izy/internal/notion"
	"github.com/starford/izy/internal/orchestrator"
	"github.com/starford/izy/internal/relay"
	"github.com/starford/izy/internal/sse"
	"github.com/starford/izy/internal/storage"
	"github.com/starford/izy/internal/store"
	"github.com/starford/izy/internal/workspace"
)

// Session is what one-shot commands operate on.
type Session struct {
	Service      *workspace.Service
	Orchestrator *orchestrator.Orchestrator
}

// components holds everything wired from a Config.
type components struct {
	db           *store.DB
	draftsRoot   string
	broker       *sse.Broker
	executor     *executor.Executor
	runtime      *correlate.Channel
	orchestrator *orchestrator.Orchestrator
	service      *workspace.Service

	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func (a *application) setup(opts []Option) (*Config, *slog.Logger, error) {
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return a.config, logger, nil
}

// build wires storage, transport and services. Background goroutines it
// starts live until close is called.
func build(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Data.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	c.db, err = store.Open(cfg.Data.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	c.closers = append(c.closers, func() { c.db.Close() })

	fs, err := storage.NewFS(cfg.Data.DraftsDir())
	if err != nil {
		return nil, fmt.Errorf("init drafts: %w", err)
	}
	c.draftsRoot = fs.Root()

	c.broker = sse.NewBroker(cfg.Data.DraftThrottle)
	c.closers = append(c.closers, c.broker.Close)

	client := notion.New(notion.Config{
		Endpoint:   cfg.Notion.Endpoint,
		Version:    cfg.Notion.Version,
		PageSize:   cfg.Notion.PageSize,
		HTTPClient: &http.Client{Timeout: cfg.Notion.Timeout},
	})
	c.executor = executor.New(client, logger)

	// The runtime port reaches the background executor: a remote izy when
	// configured, otherwise one served in-process over a pipe.
	var env envdetect.Environment
	dialHeader := wsport.BearerHeader(cfg.Transport.AuthToken)
	if cfg.Transport.RuntimeURL != "" {
		conn, err := wsport.Dial(ctx, cfg.Transport.RuntimeURL, dialHeader, cfg.Transport.DialTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("connect runtime: %w", err)
		}
		c.closers = append(c.closers, func() { conn.Close() })
		env.Runtime = conn
	} else {
		local, remote := bus.Pipe()
		stop := c.executor.Serve(context.Background(), remote)
		c.closers = append(c.closers, func() {
			local.Close()
			stop()
		})
		env.Runtime = local
	}
	c.runtime = correlate.New(env.Runtime, correlate.WithTimeout(cfg.Transport.Timeout))
	c.closers = append(c.closers, c.runtime.Close)

	orchOpts := []orchestrator.Option{
		orchestrator.WithRuntime(c.runtime),
		orchestrator.WithFallback(cfg.Transport.FallbackDirect),
		orchestrator.WithLogger(logger),
	}
	if cfg.Transport.BridgeURL != "" {
		conn, err := wsport.Dial(ctx, cfg.Transport.BridgeURL, dialHeader, cfg.Transport.DialTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("connect bridge: %w", err)
		}
		frame := correlate.New(conn, correlate.WithTimeout(cfg.Transport.Timeout))
		c.closers = append(c.closers, func() {
			frame.Close()
			conn.Close()
		})
		env.Frame = conn
		orchOpts = append(orchOpts, orchestrator.WithFrame(frame))
	}
	if cfg.Direct.AllowPublicRelay {
		orchOpts = append(orchOpts, orchestrator.WithPublicRelay(cfg.Direct.PublicRelay))
	}
	orchOpts = append(orchOpts, orchestrator.WithDetector(detector(cfg.Transport.Mode, env)))
	c.orchestrator = orchestrator.New(client, orchOpts...)

	asst := assistant.New(assistant.Config{
		Endpoint:   cfg.Assistant.Endpoint,
		Model:      cfg.Assistant.Model,
		HTTPClient: &http.Client{Timeout: cfg.Assistant.Timeout},
	}, logger)

	c.service = workspace.NewService(c.orchestrator, c.db, storage.NewDrafts(fs), asst, c.broker, logger)

	logger.Info("Components ready",
		slog.String("transport_mode", cfg.Transport.Mode),
		slog.Bool("remote_runtime", cfg.Transport.RuntimeURL != ""),
		slog.Bool("bridge", cfg.Transport.BridgeURL != ""),
		slog.Bool("fallback_direct", cfg.Transport.FallbackDirect))
	return c, nil
}

func detector(mode string, env envdetect.Environment) envdetect.Detector {
	switch mode {
	case TransportDirect:
		return envdetect.Fixed(envdetect.DirectNetwork)
	case TransportBackground:
		return envdetect.Fixed(envdetect.BackgroundMessaging)
	case TransportSandbox:
		return envdetect.Fixed(envdetect.SandboxRelay)
	default:
		return envdetect.EnvDetector{Env: env}
	}
}

// Exec wires the application, runs fn and tears everything down.
func Exec(ctx context.Context, fn func(context.Context, Session) error, opts ...Option) error {
	app := &application{}
	cfg, logger, err := app.setup(opts)
	if err != nil {
		return err
	}
	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()
	return fn(ctx, Session{Service: c.service, Orchestrator: c.orchestrator})
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	return Exec(ctx, func(_ context.Context, s Session) error {
		return mcpserver.New(s.Service).ServeStdio()
	}, opts...)
}

func writeStatus(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"status":"`+value+`"}`)
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	cfg, logger, err := app.setup(opts)
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("sqlite_path", cfg.Data.SQLitePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	g, gCtx := errgroup.WithContext(ctx)

	bridge := relay.New(c.runtime, cfg.Transport.Timeout, logger)
	apiRouter := api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := c.db.Settings(r.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Messaging endpoints: /runtime hosts the background executor, /bridge
	// relays nested callers to it.
	r.Group(func(r chi.Router) {
		r.Use(api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token))
		r.Get("/runtime", wsport.Handler(func(p bus.Port) func() {
			return c.executor.Serve(gCtx, p)
		}, logger))
		r.Get("/bridge", wsport.Handler(bridge.Attach, logger))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Start draft watcher with SSE callback.
	g.Go(func() error {
		err := storage.Watch(gCtx, c.draftsRoot, logger, func(kind storage.ChangeKind, name string) {
			c.broker.PublishDraftEvent(string(kind), name)
		})
		if err != nil {
			logger.Warn("draft watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
