package statelog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderChainingOrder(t *testing.T) {
	log := New().FS().Write("/a", "1").Env().Set("K", "v").Storage().Set("S", "v")

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, OpFSWrite, entries[0].Op)
	assert.Equal(t, OpEnvSet, entries[1].Op)
	assert.Equal(t, OpStorageSet, entries[2].Op)
	assert.Equal(t, Args{"path": "/a", "data": "1"}, entries[0].Args)
	assert.Equal(t, Args{"key": "K", "value": "v"}, entries[1].Args)
	assert.Equal(t, Args{"key": "S", "value": "v"}, entries[2].Args)
}

func TestBuilderReturnsSameLog(t *testing.T) {
	log := New()
	assert.Same(t, log, log.FS().Write("/a", "1"))
	assert.Same(t, log, log.FS().Delete("/a"))
	assert.Same(t, log, log.FS().Upload("/b", "sha256-00"))
	assert.Same(t, log, log.Env().Set("K", "v"))
	assert.Same(t, log, log.Env().Delete("K"))
	assert.Same(t, log, log.Storage().Set("S", "v"))
	assert.Same(t, log, log.Storage().Delete("S"))
	assert.Same(t, log, log.Storage().Clear())
	assert.Equal(t, 8, log.Len())
}

func TestStorageClearHasEmptyArgs(t *testing.T) {
	entries := New().Storage().Clear().Entries()
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].Args)
	assert.Empty(t, entries[0].Args)
}

func TestEntriesIsSnapshot(t *testing.T) {
	log := New().Env().Set("K", "v")

	snap := log.Entries()
	snap[0].Op = "env.delete"
	snap[0].Args["key"] = "OTHER"
	_ = append(snap, Entry{Op: "fs.write"})

	again := log.Entries()
	require.Len(t, again, 1)
	assert.Equal(t, OpEnvSet, again[0].Op)
	assert.Equal(t, "K", again[0].Args["key"])
}

func TestFromEntriesCopies(t *testing.T) {
	src := []Entry{NewEntry(OpEnvSet, Args{"key": "K", "value": "v"})}
	log := FromEntries(src)
	src[0].Args["key"] = "changed"

	assert.Equal(t, "K", log.Entries()[0].Args["key"])
}

func TestRecordConcurrentAppendsAllLand(t *testing.T) {
	log := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Record(OpEnvSet, Args{"key": "K", "value": "v"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, log.Len())
}

func TestEntryNamespaceAndVerb(t *testing.T) {
	e := NewEntry("storage.clear", nil)
	assert.Equal(t, NamespaceStorage, e.Namespace())
	assert.Equal(t, "clear", e.Verb())

	bare := NewEntry("noop", nil)
	assert.Equal(t, "noop", bare.Namespace())
	assert.Equal(t, "", bare.Verb())
}

func TestArgsString(t *testing.T) {
	args := Args{"path": "/a", "n": 3}

	s, ok := args.String("path")
	assert.True(t, ok)
	assert.Equal(t, "/a", s)

	_, ok = args.String("n")
	assert.False(t, ok)
	_, ok = args.String("missing")
	assert.False(t, ok)
}
