// Package zoterochat provides a high-level façade over the subprocess
// supervisor, the MCP transport client and the retrieval orchestrator.
// Most applications interact with this package by:
//  1. Loading Settings (config.Load) and creating an App via New()
//  2. Calling Start() to launch the zotero-mcp service and complete the
//     MCP handshake
//  3. Asking questions with Query(), carrying the returned sources in the
//     conversation history for follow-ups
//
// The façade wires the pieces together while keeping each layer usable on
// its own: the transport client works against any MCP endpoint, and the
// orchestrator accepts any ToolCaller.
package zoterochat

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/zoterochat/config"
	"github.com/hupe1980/zoterochat/core"
	"github.com/hupe1980/zoterochat/llm"
	"github.com/hupe1980/zoterochat/logging"
	"github.com/hupe1980/zoterochat/orchestrator"
	"github.com/hupe1980/zoterochat/server"
	"github.com/hupe1980/zoterochat/transport"
)

// Options configures the App.
type Options struct {
	// Logger receives events from every layer. Defaults to a slog logger
	// built from the settings' log_level and log_format.
	Logger logging.Logger
	// OnServerCrash is invoked at most once per unexpected subprocess exit.
	// Defaults to a log line.
	OnServerCrash func()
}

// App aggregates the managed zotero-mcp subprocess, the MCP client and the
// orchestrator behind a small conversational surface.
type App struct {
	cfg    config.Settings
	logger logging.Logger

	manager  *server.Manager
	client   *transport.Client
	provider llm.Provider

	mu      sync.Mutex
	orch    *orchestrator.Orchestrator
	started bool
}

// New creates an App from validated settings. No subprocess is launched and
// no network traffic happens until Start.
func New(cfg config.Settings, optFns ...func(o *Options)) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, nil)
	}

	provider, err := llm.New(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		logger:   opts.Logger,
		provider: provider,
	}

	app.manager = server.NewManager(cfg.MCPExecutablePath, cfg.MCPServerPort, func(o *server.Options) {
		o.Logger = opts.Logger
	})
	crash := opts.OnServerCrash
	if crash == nil {
		crash = func() {
			app.logger.Error("zotero-mcp exited unexpectedly", "lastError", app.manager.LastError())
		}
	}
	app.manager.OnUnexpectedExit(crash)

	return app, nil
}

// Start launches the zotero-mcp subprocess, waits for it to accept HTTP
// traffic and completes the MCP initialize handshake. Calling Start on an
// already started App returns nil.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("start zotero-mcp: %w", err)
	}

	a.client = transport.NewClient(a.manager.BaseURL(), func(o *transport.Options) {
		o.Logger = a.logger
	})
	if err := a.client.Initialize(ctx); err != nil {
		a.manager.Stop()
		return fmt.Errorf("mcp handshake: %w", err)
	}

	a.orch = orchestrator.New(a.client, a.provider, a.cfg, func(o *orchestrator.Options) {
		o.Logger = a.logger
	})
	a.started = true
	a.logger.Info("zotero chat ready", "baseURL", a.manager.BaseURL(), "model", a.provider.ModelName())
	return nil
}

// Query runs one retrieval-then-generate round trip. History is the prior
// conversation, newest last; the caller keeps the returned sources on the
// assistant turn it appends so follow-ups can reuse them.
func (a *App) Query(ctx context.Context, question string, history []core.ChatMessage, attachment *core.Attachment) (*orchestrator.Result, error) {
	a.mu.Lock()
	orch := a.orch
	a.mu.Unlock()
	if orch == nil {
		return nil, fmt.Errorf("app not started")
	}
	return orch.Query(ctx, question, history, attachment)
}

// Tools lists the tools the running service exposes.
func (a *App) Tools(ctx context.Context) ([]transport.Tool, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("app not started")
	}
	return client.ListTools(ctx)
}

// CheckLLM reports whether the configured provider answers a minimal request.
func (a *App) CheckLLM(ctx context.Context) bool {
	return a.provider.TestConnection(ctx)
}

// Provider exposes the configured LLM backend, mainly for diagnostics.
func (a *App) Provider() llm.Provider { return a.provider }

// ServerState reports the subprocess lifecycle state.
func (a *App) ServerState() server.State { return a.manager.State() }

// ServerStderr returns recent stderr lines from the subprocess.
func (a *App) ServerStderr() []string { return a.manager.StderrLog() }

// UpdateSettings swaps in new validated settings, rebuilding the provider
// and orchestrator. The running subprocess is untouched; executable path or
// port changes require a restart of the App.
func (a *App) UpdateSettings(cfg config.Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	provider, err := llm.New(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.provider = provider
	if a.started {
		a.orch = orchestrator.New(a.client, provider, cfg, func(o *orchestrator.Options) {
			o.Logger = a.logger
		})
	}
	return nil
}

// Close ends the MCP session and stops the subprocess. Safe to call more
// than once and before Start.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	a.manager.Stop()
	a.orch = nil
	a.started = false
}
