package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandboxx/internal/sandbox"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
)

// seedSession appends entries to key in line form, as a recording session
// does.
func seedSession(t *testing.T, st store.Store, key string, log *statelog.Log) {
	t.Helper()
	for _, e := range log.Entries() {
		require.NoError(t, st.AppendEntry(context.Background(), key, e))
	}
}

func sampleLog() *statelog.Log {
	return statelog.New().
		FS().Write("/app/a.txt", "one").
		FS().Write("/app/a.txt", "two").
		Env().Set("MODE", "prod")
}

func TestLogList(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run("log", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No logs found.")

	st := env.store(t)
	seedSession(t, st, "sandbox-b", sampleLog())
	require.NoError(t, st.SaveLog(context.Background(), "base", "[]"))

	out, _, err = env.run("log", "list")
	require.NoError(t, err)
	assert.Equal(t, "base\nsandbox-b\n", out)

	out, _, err = env.run("--format", "json", "log", "list")
	require.NoError(t, err)
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"base", "sandbox-b"}, resp.Data.Keys)
}

func TestLogShow(t *testing.T) {
	env := newCLIEnv(t)
	seedSession(t, env.store(t), "sandbox-a", sampleLog())

	out, _, err := env.run("log", "show", "sandbox-a")
	require.NoError(t, err)
	parsed, err := statelog.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, 3, parsed.Len())

	out, _, err = env.run("log", "show", "sandbox-a", "--compact")
	require.NoError(t, err)
	parsed, err = statelog.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, 2, parsed.Len())
}

func TestLogShow_JSON(t *testing.T) {
	env := newCLIEnv(t)
	seedSession(t, env.store(t), "sandbox-a", sampleLog())

	out, _, err := env.run("--format", "json", "log", "show", "sandbox-a")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LogSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "sandbox-a", resp.Data.Key)
	assert.Equal(t, 3, resp.Data.Entries)
	assert.True(t, strings.HasPrefix(resp.Data.Digest, statelog.DigestPrefix))
	require.Len(t, resp.Data.Log, 3)
	assert.Equal(t, statelog.OpEnvSet, resp.Data.Log[2].Op)

	want, err := statelog.Digest(sampleLog())
	require.NoError(t, err)
	assert.Equal(t, want, resp.Data.Digest)
}

func TestLogShow_JSONWithNumericArgs(t *testing.T) {
	env := newCLIEnv(t)
	log := statelog.FromEntries([]statelog.Entry{
		statelog.NewEntry(statelog.OpEnvSet, statelog.Args{"key": "K", "value": "v"}),
		statelog.NewEntry("net.allow", statelog.Args{"host": "example.com", "port": 443}),
	})
	seedSession(t, env.store(t), "sandbox-n", log)

	out, _, err := env.run("--format", "json", "log", "show", "sandbox-n")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   LogSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Entries)
	assert.Empty(t, resp.Data.Digest)
	require.Len(t, resp.Data.Log, 2)
	assert.Equal(t, "net.allow", resp.Data.Log[1].Op)
	assert.InDelta(t, 443, resp.Data.Log[1].Args["port"], 0)
}

func TestLogShow_Missing(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("log", "show", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log not found: nope")
}

func TestLogCompact(t *testing.T) {
	env := newCLIEnv(t)
	st := env.store(t)
	seedSession(t, st, "sandbox-a", sampleLog())

	out, _, err := env.run("log", "compact", "sandbox-a", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would compact sandbox-a: 3 -> 2 entries (sandbox-a.compact)")
	_, ok, err := st.LoadLog(context.Background(), "sandbox-a.compact")
	require.NoError(t, err)
	assert.False(t, ok, "dry run must not save")

	out, _, err = env.run("log", "compact", "sandbox-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Compacted sandbox-a: 3 -> 2 entries")

	compacted, ok, err := sandbox.LoadLog(context.Background(), st, "sandbox-a.compact")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleLog().Compact().Entries(), compacted.Entries())

	// The source log is untouched.
	source, _, err := sandbox.LoadLog(context.Background(), st, "sandbox-a")
	require.NoError(t, err)
	assert.Equal(t, 3, source.Len())
}

func TestLogCompact_Output(t *testing.T) {
	env := newCLIEnv(t)
	seedSession(t, env.store(t), "sandbox-a", sampleLog())

	out, _, err := env.run("--format", "json", "log", "compact", "sandbox-a", "-o", "base-image")
	require.NoError(t, err)
	var resp struct {
		Data CompactResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, CompactResult{Key: "sandbox-a", Output: "base-image", Before: 3, After: 2}, resp.Data)

	_, _, err = env.run("log", "compact", "sandbox-a", "-o", "sandbox-a")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogValidate(t *testing.T) {
	env := newCLIEnv(t)
	seedSession(t, env.store(t), "sandbox-a", sampleLog())

	out, _, err := env.run("log", "validate", "sandbox-a")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sandbox-a is valid")
}

func TestLogValidate_File(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()

	valid := filepath.Join(dir, "state.jsonl")
	require.NoError(t, os.WriteFile(valid, []byte(
		`{"op":"fs.write","args":{"path":"/a","data":"x"}}`+"\n"+
			`{"op":"storage.clear","args":{}}`+"\n"), 0o644))
	out, _, err := env.run("log", "validate", "--file", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	invalid := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`[{"op":"fs.write","args":{"path":"/a"}}]`), 0o644))
	out, _, err = env.run("--format", "json", "log", "validate", "-f", invalid)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_INVALID_LOG", resp.Error.Code)
}

func TestLogValidate_Usage(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("log", "validate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = env.run("log", "validate", "k", "--file", "x.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLogDelete(t *testing.T) {
	env := newCLIEnv(t)
	st := env.store(t)
	seedSession(t, st, "sandbox-a", sampleLog())

	out, _, err := env.run("log", "delete", "sandbox-a")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted sandbox-a")

	_, ok, err := st.LoadLog(context.Background(), "sandbox-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogImport(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()

	text, err := sampleLog().JSON()
	require.NoError(t, err)
	file := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(file, []byte(text), 0o644))

	out, _, err := env.run("log", "import", "base", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 entries into base")

	imported, ok, err := sandbox.LoadLog(context.Background(), env.store(t), "base")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleLog().Entries(), imported.Entries())
}

func TestLogImport_Lines(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(t.TempDir(), "session.jsonl")
	// The unterminated tail is a torn append and is dropped.
	content := `{"op":"env.set","args":{"key":"K","value":"V"}}` + "\n" + `{"op":"env.se`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	out, _, err := env.run("log", "import", "restored", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 entries into restored")
}

func TestLogImport_Invalid(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()

	notJSON := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(notJSON, []byte("not json"), 0o644))
	_, _, err := env.run("log", "import", "k", notJSON)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	badArgs := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badArgs, []byte(`[{"op":"env.set","args":{"key":"K"}}]`), 0o644))
	_, _, err = env.run("log", "import", "k", badArgs)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, ok, err := env.store(t).LoadLog(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = env.run("log", "import", "k", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
