package isolator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandboxx/internal/state"
)

func newLocal(t *testing.T, timeout time.Duration) *Local {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	l, err := NewLocal(LocalConfig{WorkDir: t.TempDir(), ID: "sandbox-test", Timeout: timeout})
	require.NoError(t, err)
	return l
}

func TestLocalExec(t *testing.T) {
	l := newLocal(t, 0)
	ctx := context.Background()

	res, err := l.Exec(ctx, Command{Script: `echo "$GREETING"; pwd -P`, Env: map[string]string{"GREETING": "hi"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.ExitCode)
	wd, err := filepath.EvalSymlinks(l.Dir())
	require.NoError(t, err)
	assert.Equal(t, "hi\n"+wd+"\n", res.Stdout)
}

func TestLocalExecNonZeroExit(t *testing.T) {
	l := newLocal(t, 0)

	res, err := l.Shell(context.Background(), "echo oops >&2; exit 3")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestLocalExecTimeout(t *testing.T) {
	l := newLocal(t, 50*time.Millisecond)

	_, err := l.Shell(context.Background(), "sleep 5")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLocalFileSystemSharesWorkDir(t *testing.T) {
	l := newLocal(t, 0)
	ctx := context.Background()

	require.NoError(t, l.FileSystem().Write(ctx, "/src/app.txt", "from fs"))
	res, err := l.Shell(ctx, "cat src/app.txt")
	require.NoError(t, err)
	assert.Equal(t, "from fs", res.Stdout)

	_, err = l.Shell(ctx, "printf shell > made.txt")
	require.NoError(t, err)
	got, err := l.FileSystem().Read(ctx, "/made.txt")
	require.NoError(t, err)
	assert.Equal(t, "shell", got)
}

func TestLocalShellFilesystem(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	l, err := NewLocal(LocalConfig{WorkDir: t.TempDir(), ID: "sandbox-shell", Filesystem: FilesystemShell})
	require.NoError(t, err)
	ctx := context.Background()

	fsys := l.FileSystem()
	assert.IsType(t, &state.ShellFS{}, fsys)
	require.NoError(t, fsys.Write(ctx, "/app/.env", "K=v"))

	data, err := os.ReadFile(filepath.Join(l.Dir(), "app", ".env"))
	require.NoError(t, err)
	assert.Equal(t, "K=v", string(data))

	names, err := fsys.List(ctx, "/app")
	require.NoError(t, err)
	assert.Equal(t, []string{".env"}, names)

	require.NoError(t, l.Upload(ctx, []byte{0x00, 0x01}, "/app/bin"))
	ok, err := fsys.Exists(ctx, "/app/bin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLocalUnknownFilesystem(t *testing.T) {
	_, err := NewLocal(LocalConfig{WorkDir: t.TempDir(), ID: "x", Filesystem: "nfs"})
	assert.ErrorContains(t, err, "unknown filesystem")
}

func TestLocalDestroy(t *testing.T) {
	l := newLocal(t, 0)
	require.NoError(t, l.Destroy(context.Background()))
	_, err := os.Stat(l.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestNewLocalRequiresID(t *testing.T) {
	_, err := NewLocal(LocalConfig{WorkDir: t.TempDir()})
	assert.Error(t, err)
}

func TestDirFS(t *testing.T) {
	root := t.TempDir()
	d := NewDirFS(root)
	ctx := context.Background()

	require.NoError(t, d.Write(ctx, "/a/b/c.txt", "abc"))
	got, err := d.Read(ctx, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	names, err := d.List(ctx, "/a/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt"}, names)

	names, err = d.List(ctx, "/nowhere")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, d.Write(ctx, "/../../escape.txt", "x"))
	_, err = os.Stat(filepath.Join(root, "escape.txt"))
	assert.NoError(t, err, "paths are confined to the root")

	require.NoError(t, d.Delete(ctx, "/a"))
	ok, err := d.Exists(ctx, "/a/b/c.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, d.Delete(ctx, "/a"))

	assert.Error(t, d.Delete(ctx, "/"))

	_, err = d.Read(ctx, "/missing")
	var fe *state.FileSystemError
	assert.ErrorAs(t, err, &fe)
}

func TestDirFSTransfer(t *testing.T) {
	d := NewDirFS(t.TempDir())
	ctx := context.Background()
	data := []byte{0x00, 0xff, 0x10}

	require.NoError(t, d.Upload(ctx, data, "/bin/blob"))
	got, err := d.Download(ctx, "/bin/blob")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
