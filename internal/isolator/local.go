package isolator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/sandboxx/internal/state"
)

// DefaultTimeout bounds a command when LocalConfig.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Filesystem modes for LocalConfig.Filesystem.
const (
	// FilesystemDir serves text file operations with direct file I/O.
	FilesystemDir = "dir"
	// FilesystemShell serves them through shell commands, the way an
	// exec-only backend does.
	FilesystemShell = "shell"
)

// LocalConfig configures a Local isolator.
type LocalConfig struct {
	// WorkDir is the parent directory; the session gets WorkDir/<ID>.
	WorkDir string
	ID      string
	Timeout time.Duration
	Logger  *slog.Logger

	// Filesystem selects FilesystemDir (default) or FilesystemShell.
	// Uploads and downloads always use direct file I/O.
	Filesystem string
}

// Local runs sh -c on the host inside a per-session work directory.
// It provides no isolation beyond the working directory and is meant for
// development and tests.
type Local struct {
	dir     string
	timeout time.Duration
	logger  *slog.Logger
	files   *DirFS
	fs      state.FileSystem
}

// NewLocal creates the session work directory.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.WorkDir == "" || cfg.ID == "" {
		return nil, fmt.Errorf("local isolator: work dir and id are required")
	}
	dir := filepath.Join(cfg.WorkDir, cfg.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{dir: dir, timeout: timeout, logger: logger, files: NewDirFS(dir)}
	switch cfg.Filesystem {
	case "", FilesystemDir:
		l.fs = l.files
	case FilesystemShell:
		l.fs = state.NewRootedShellFS(l, dir)
	default:
		return nil, fmt.Errorf("local isolator: unknown filesystem %q", cfg.Filesystem)
	}
	return l, nil
}

// Dir returns the session work directory.
func (l *Local) Dir() string {
	return l.dir
}

// Exec runs cmd.Script with sh -c. A non-zero exit is a result, not an
// error; spawn failures and timeouts are errors.
func (l *Local) Exec(ctx context.Context, cmd Command) (state.ShellResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	c := exec.CommandContext(ctx, "sh", "-c", cmd.Script)
	c.Dir = l.dir
	c.Env = append(os.Environ(), envSlice(cmd.Env)...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := state.ShellResult{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: time.Since(start),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %s", ErrTimeout, l.timeout)
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Success = true
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("execution failed: %w", err)
	}
	l.logger.Debug("command executed",
		"exit_code", res.ExitCode,
		"duration", res.ExecutionTime)
	return res, nil
}

// Shell runs command with no extra environment.
func (l *Local) Shell(ctx context.Context, command string) (state.ShellResult, error) {
	return l.Exec(ctx, Command{Script: command})
}

func (l *Local) FileSystem() state.FileSystem {
	return l.fs
}

func (l *Local) Upload(ctx context.Context, data []byte, remotePath string) error {
	return l.files.Upload(ctx, data, remotePath)
}

func (l *Local) Download(ctx context.Context, remotePath string) ([]byte, error) {
	return l.files.Download(ctx, remotePath)
}

// Destroy removes the work directory. A failure is logged, not returned,
// since the session is gone either way.
func (l *Local) Destroy(context.Context) error {
	if err := os.RemoveAll(l.dir); err != nil {
		l.logger.Warn("failed to clean up work directory", "dir", l.dir, "error", err)
	}
	return nil
}

// envSlice converts a map env to a sorted KEY=VALUE slice.
func envSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

var (
	_ Isolator    = (*Local)(nil)
	_ state.Shell = (*Local)(nil)
)
