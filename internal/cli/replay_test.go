package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandboxx/internal/statelog"
)

func replayLog(t *testing.T, env *cliEnv) *statelog.Log {
	t.Helper()
	logo := []byte("PNGDATA")
	ref := statelog.BlobRef(logo)
	require.NoError(t, env.store(t).SaveBlob(context.Background(), ref, logo))
	return statelog.New().
		FS().Write("/app/a.txt", "one").
		FS().Write("/app/a.txt", "hi").
		FS().Upload("/img/logo.png", ref).
		FS().Write("/tmp/scratch", "x").
		FS().Delete("/tmp/scratch").
		Env().Set("MODE", "prod").
		Storage().Set("k", "v")
}

func decodeReplay(t *testing.T, out string) ReplayResult {
	t.Helper()
	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp.Data
}

func TestReplay_RestoresWorkDir(t *testing.T) {
	env := newCLIEnv(t)
	seedSession(t, env.store(t), "sandbox-a", replayLog(t, env))

	out, _, err := env.run("--format", "json", "replay", "sandbox-a", "--verify")
	require.NoError(t, err)

	result := decodeReplay(t, out)
	assert.Equal(t, "sandbox-a", result.Key)
	assert.Equal(t, 7, result.Entries)
	assert.Equal(t, 5, result.Compacted)
	assert.Equal(t, 1, result.EnvVars)
	assert.Equal(t, 1, result.StorageItems)
	assert.Equal(t, 2, result.Files)
	assert.True(t, result.Verified)
	assert.True(t, result.Deterministic)

	require.NotEmpty(t, result.Dir)
	assert.Equal(t, filepath.Join(env.dir, "sandboxes", result.SessionID), result.Dir)

	got, err := os.ReadFile(filepath.Join(result.Dir, "app", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))

	got, err = os.ReadFile(filepath.Join(result.Dir, "img", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(got))

	_, err = os.Stat(filepath.Join(result.Dir, "tmp", "scratch"))
	assert.True(t, os.IsNotExist(err))
}

func TestReplay_Text(t *testing.T) {
	env := newCLIEnv(t)
	seedSession(t, env.store(t), "sandbox-a", replayLog(t, env))

	out, _, err := env.run("replay", "sandbox-a", "--verify", "--destroy")
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed sandbox-a into sandbox-")
	assert.Contains(t, out, "Entries: 7 (5 compacted)")
	assert.Contains(t, out, "✓ Compacted log replays to the same state")
	assert.NotContains(t, out, "Directory:")

	entries, err := os.ReadDir(filepath.Join(env.dir, "sandboxes"))
	require.NoError(t, err)
	assert.Empty(t, entries, "--destroy removes the work directory")
}

func TestReplay_MissingLog(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("replay", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log not found")
}

func TestReplay_MissingBlob(t *testing.T) {
	env := newCLIEnv(t)
	ref := statelog.BlobRef([]byte("never stored"))
	seedSession(t, env.store(t), "sandbox-a", statelog.New().FS().Upload("/f", ref))

	_, _, err := env.run("replay", "sandbox-a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to restore files")
}

func TestReplay_RequiresKey(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestReplay_ShellFilesystem(t *testing.T) {
	env := newCLIEnvWith(t, "isolator:\n  filesystem: shell\n")
	seedSession(t, env.store(t), "sandbox-sh", replayLog(t, env))

	out, _, err := env.run("--format", "json", "replay", "sandbox-sh")
	require.NoError(t, err)

	result := decodeReplay(t, out)
	data, err := os.ReadFile(filepath.Join(result.Dir, "app", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	logo, err := os.ReadFile(filepath.Join(result.Dir, "img", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(logo))
	_, err = os.Stat(filepath.Join(result.Dir, "tmp", "scratch"))
	assert.True(t, os.IsNotExist(err))
}

func TestReplay_MissingBlobJSON(t *testing.T) {
	env := newCLIEnv(t)
	ref := statelog.BlobRef([]byte("never stored"))
	seedSession(t, env.store(t), "sandbox-a", statelog.New().
		Env().Set("K", "v").
		FS().Upload("/f", ref))

	out, _, err := env.run("--format", "json", "replay", "sandbox-a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeBlobMissing, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sandbox-a", details["key"])
	assert.Equal(t, statelog.OpFSUpload, details["op"])
}
