package server

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/zoterochat/logging"
)

// Common install locations for the zotero-mcp executable, appended when the
// login shell cannot be queried.
var fallbackPathDirs = []string{
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

// resolveEnv returns the process environment with a recovered PATH. A parent
// launched from a GUI context often carries an impoverished PATH, so the
// user's interactive shell is asked for its PATH first; if that fails, a
// fixed list of common install directories is appended instead.
func resolveEnv(logger logging.Logger) []string {
	path := shellPath(logger)
	if path == "" {
		path = fallbackPath()
	}

	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + path
			return env
		}
	}
	return append(env, "PATH="+path)
}

// shellPath asks the user's login shell for its PATH. Returns "" when the
// shell is unknown, times out, or prints nothing useful.
func shellPath(logger logging.Logger) string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, shell, "-l", "-c", "echo $PATH").Output()
	if err != nil {
		logger.Debug("login shell PATH query failed", "shell", shell, "error", err)
		return ""
	}

	// Login shells may print banners; the PATH is the last non-empty line.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && strings.Contains(line, string(os.PathListSeparator)) {
			return line
		}
	}
	return ""
}

// fallbackPath extends the inherited PATH with the fixed directory list,
// skipping entries already present.
func fallbackPath() string {
	dirs := filepath.SplitList(os.Getenv("PATH"))
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		seen[d] = true
	}
	for _, d := range fallbackPathDirs {
		if !seen[d] {
			dirs = append(dirs, d)
			seen[d] = true
		}
	}
	return strings.Join(dirs, string(os.PathListSeparator))
}
