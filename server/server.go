// Package server owns the external zotero-mcp knowledge-service process end
// to end: it spawns the executable in streamable-HTTP mode, captures its
// stderr into a bounded ring, waits for the HTTP endpoint to answer, and
// reports unexpected exits to a registered observer.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hupe1980/zoterochat/logging"
)

// State is the lifecycle phase of the supervised process.
type State int

const (
	// StateNotStarted means no launch has been attempted yet.
	StateNotStarted State = iota
	// StateStarting means the process is launched but not yet answering HTTP.
	StateStarting
	// StateReady means the readiness probe has succeeded.
	StateReady
	// StateCrashed means the process exited unexpectedly with a non-zero code.
	StateCrashed
	// StateStopped means the process was terminated on request.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateCrashed:
		return "crashed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ProcessError reports a failure owning the knowledge-service process:
// a spawn failure, an exit during the readiness wait, or a readiness timeout.
type ProcessError struct {
	Op     string // "spawn", "wait-ready"
	Err    error
	Stderr string // tail of captured stderr, if any
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("zotero-mcp %s: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

const stderrRingCapacity = 50

// Options configures a Manager.
type Options struct {
	// ReadyTimeout bounds the readiness wait after launch.
	ReadyTimeout time.Duration
	// PollInterval is the delay between readiness probes.
	PollInterval time.Duration
	// Logger receives lifecycle events. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Manager launches and monitors the knowledge-service executable. The
// subprocess is owned exclusively by the Manager; callers observe it through
// IsRunning, State and the OnUnexpectedExit observer.
type Manager struct {
	exePath      string
	port         int
	readyTimeout time.Duration
	pollInterval time.Duration
	logger       logging.Logger
	probeClient  *http.Client

	mu            sync.Mutex
	cmd           *exec.Cmd
	state         State
	exited        bool
	stopping      bool
	crashNotified bool
	lastError     string
	stderrRing    []string
	onExit        func()
}

// NewManager constructs a Manager for the executable at exePath serving on
// the given loopback port.
func NewManager(exePath string, port int, optFns ...func(o *Options)) *Manager {
	opts := Options{
		ReadyTimeout: 30 * time.Second,
		PollInterval: 500 * time.Millisecond,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		exePath:      exePath,
		port:         port,
		readyTimeout: opts.ReadyTimeout,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
		probeClient:  &http.Client{Timeout: 2 * time.Second},
		state:        StateNotStarted,
	}
}

// OnUnexpectedExit registers an observer fired at most once per crash when
// the process exits with a non-zero code without Stop having been called.
// The owner typically subscribes once at startup to surface a notification.
func (m *Manager) OnUnexpectedExit(fn func()) {
	m.mu.Lock()
	m.onExit = fn
	m.mu.Unlock()
}

// Start launches the process and blocks until it answers HTTP or the ready
// timeout elapses. It is a no-op when a live process handle already exists.
// Launch failures and readiness timeouts are fatal; crashes after readiness
// are reported through the exit observer instead.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cmd != nil {
		m.mu.Unlock()
		return nil
	}

	cmd := exec.Command(m.exePath,
		"serve", "--transport", "streamable-http", "--port", strconv.Itoa(m.port))
	cmd.Env = resolveEnv(m.logger)
	// Stdin stays nil (the child reads from /dev/null); stdout is drained and
	// discarded; stderr feeds the bounded ring. Writer-backed pipes are fully
	// drained by cmd.Wait before it returns, so no capture goroutine races
	// the exit handler.
	cmd.Stdout = io.Discard
	cmd.Stderr = &lineWriter{emit: m.appendStderr}

	m.stderrRing = nil
	m.exited = false
	m.stopping = false
	m.crashNotified = false
	m.lastError = ""
	m.state = StateStarting

	if err := cmd.Start(); err != nil {
		m.lastError = fmt.Sprintf("failed to launch %s: %v", m.exePath, err)
		m.state = StateNotStarted
		m.mu.Unlock()
		m.logger.Error("zotero-mcp launch failed", "error", err)
		return &ProcessError{Op: "spawn", Err: err}
	}
	m.cmd = cmd
	m.mu.Unlock()

	m.logger.Info("zotero-mcp started", "pid", cmd.Process.Pid, "port", m.port)

	go m.waitForExit(cmd)

	if err := m.waitForReady(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()
	m.logger.Info("zotero-mcp ready", "url", m.BaseURL())
	return nil
}

// Stop sends SIGTERM and drops the process handle without waiting for a
// graceful shutdown. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return
	}
	m.stopping = true
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Signal(syscall.SIGTERM)
	}
	m.cmd = nil
	m.state = StateStopped
	m.logger.Info("zotero-mcp stopped")
}

// IsRunning reports whether a process handle exists and no exit has been
// recorded for it.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd != nil && !m.exited
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BaseURL returns the loopback HTTP endpoint of the service.
func (m *Manager) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", m.port)
}

// StderrLog returns a copy of the captured stderr ring.
func (m *Manager) StderrLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stderrRing...)
}

// LastError returns the most recent launch or crash error, if any.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// lineWriter buffers writes into complete lines and hands each non-empty,
// trimmed line to emit. A trailing line without a newline stays buffered.
type lineWriter struct {
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := strings.TrimSpace(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
		if line != "" {
			w.emit(line)
		}
	}
}

func (m *Manager) appendStderr(line string) {
	m.mu.Lock()
	m.stderrRing = append(m.stderrRing, line)
	if len(m.stderrRing) > stderrRingCapacity {
		m.stderrRing = m.stderrRing[1:]
	}
	m.mu.Unlock()
}

func (m *Manager) waitForExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	m.mu.Lock()
	m.exited = true
	stopping := m.stopping
	var notify func()
	if !stopping && exitCode != 0 {
		m.lastError = fmt.Sprintf("zotero-mcp exited unexpectedly (code %d)", exitCode)
		m.state = StateCrashed
		if m.onExit != nil && !m.crashNotified {
			m.crashNotified = true
			notify = m.onExit
		}
	} else if !stopping {
		m.state = StateStopped
	}
	m.cmd = nil
	m.mu.Unlock()

	m.logger.Info("zotero-mcp exited", "code", exitCode, "requested", stopping)
	if notify != nil {
		notify()
	}
}

// waitForReady polls the HTTP endpoint until the service answers. Any
// response with a transport-level status counts as ready, including 4xx: the
// endpoint requires a session header the probe intentionally omits, so a fast
// 400 proves liveness without opening a hanging stream.
func (m *Manager) waitForReady(ctx context.Context) error {
	probeBody := []byte(`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{` +
		`"protocolVersion":"2025-03-26","capabilities":{},` +
		`"clientInfo":{"name":"zotero-chat-go-probe","version":"0.1.0"}}}`)

	deadline := time.Now().Add(m.readyTimeout)
	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			tail := m.stderrTail(5)
			return &ProcessError{
				Op:     "wait-ready",
				Err:    fmt.Errorf("process exited unexpectedly during startup"),
				Stderr: tail,
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			m.BaseURL()+"/mcp", bytes.NewReader(probeBody))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			resp, probeErr := m.probeClient.Do(req)
			if probeErr == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return &ProcessError{Op: "wait-ready", Err: ctx.Err()}
		case <-time.After(m.pollInterval):
		}
	}

	return &ProcessError{
		Op:  "wait-ready",
		Err: fmt.Errorf("did not become ready within %s", m.readyTimeout),
	}
}

func (m *Manager) stderrTail(n int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stderrRing) > n {
		return strings.Join(m.stderrRing[len(m.stderrRing)-n:], "\n")
	}
	return strings.Join(m.stderrRing, "\n")
}
