package state

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ShellFS implements FileSystem by running POSIX shell commands through a
// sandbox's Shell capability. It is the adapter used for isolators that
// only expose command execution, such as a remote container gateway.
type ShellFS struct {
	sh   Shell
	root string
}

// NewShellFS returns a filesystem backed by sh. Paths are passed to the
// shell as given.
func NewShellFS(sh Shell) *ShellFS {
	return &ShellFS{sh: sh}
}

// NewRootedShellFS returns a filesystem backed by sh whose "/" is root on
// the shell's side. Paths cannot climb above root.
func NewRootedShellFS(sh Shell, root string) *ShellFS {
	return &ShellFS{sh: sh, root: root}
}

// resolve maps a sandbox path to the path handed to the shell.
func (f *ShellFS) resolve(p string) string {
	if f.root == "" {
		return p
	}
	return path.Join(f.root, path.Clean("/"+p))
}

// quote wraps s in single quotes for sh. Embedded single quotes become '\''.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (f *ShellFS) run(ctx context.Context, op, p, cmd string) (ShellResult, error) {
	res, err := f.sh.Shell(ctx, cmd)
	if err != nil {
		return res, &FileSystemError{Op: op, Path: p, Err: err}
	}
	return res, nil
}

func (f *ShellFS) Read(ctx context.Context, p string) (string, error) {
	res, err := f.run(ctx, "read", p, "cat -- "+quote(f.resolve(p)))
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", &FileSystemError{Op: "read", Path: p, Err: shellFailure(res)}
	}
	return res.Stdout, nil
}

// Write creates parent directories and writes data verbatim; no trailing
// newline is added.
func (f *ShellFS) Write(ctx context.Context, p, data string) error {
	target := f.resolve(p)
	cmd := fmt.Sprintf("printf '%%s' %s > %s", quote(data), quote(target))
	if dir := path.Dir(target); dir != "." && dir != "/" {
		cmd = "mkdir -p -- " + quote(dir) + " && " + cmd
	}
	res, err := f.run(ctx, "write", p, cmd)
	if err != nil {
		return err
	}
	if !res.Success {
		return &FileSystemError{Op: "write", Path: p, Err: shellFailure(res)}
	}
	return nil
}

// List returns the entries of dir, dotfiles included. A missing directory
// yields an empty list.
func (f *ShellFS) List(ctx context.Context, dir string) ([]string, error) {
	res, err := f.run(ctx, "list", dir, "ls -1A -- "+quote(f.resolve(dir))+" 2>/dev/null")
	if err != nil {
		return nil, err
	}
	out := strings.TrimSpace(res.Stdout)
	if !res.Success || out == "" {
		return []string{}, nil
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (f *ShellFS) Exists(ctx context.Context, p string) (bool, error) {
	res, err := f.run(ctx, "exists", p, "test -e "+quote(f.resolve(p))+` && echo yes || echo no`)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "yes", nil
}

func (f *ShellFS) Delete(ctx context.Context, p string) error {
	res, err := f.run(ctx, "delete", p, "rm -rf -- "+quote(f.resolve(p)))
	if err != nil {
		return err
	}
	if !res.Success {
		return &FileSystemError{Op: "delete", Path: p, Err: shellFailure(res)}
	}
	return nil
}

func shellFailure(res ShellResult) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = "command failed"
	}
	return fmt.Errorf("exit %d: %s", res.ExitCode, msg)
}
