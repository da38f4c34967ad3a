package state

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandboxx/internal/statelog"
)

func TestRecordingEnvSet(t *testing.T) {
	live := NewMemoryEnv(nil)
	rec := NewRecorder(statelog.New(), nil)
	env := rec.Env(live)

	require.NoError(t, env.Set("K", "v"))

	v, ok := live.Get("K")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	entries := rec.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, statelog.NewEntry(statelog.OpEnvSet, statelog.Args{"key": "K", "value": "v"}), entries[0])
}

func TestRecordingReadsAreNotRecorded(t *testing.T) {
	target, _ := newTarget()
	rec := NewRecorder(nil, nil)
	wrapped := rec.Wrap(target)
	ctx := context.Background()

	require.NoError(t, target.Env.Set("K", "v"))
	require.NoError(t, target.Storage.SetItem("S", "v"))
	require.NoError(t, target.FS.Write(ctx, "/a", "1"))

	_, _ = wrapped.Env.Get("K")
	_ = wrapped.Env.Has("K")
	_ = wrapped.Env.Keys()
	_ = wrapped.Env.All()
	_, _ = wrapped.Storage.GetItem("S")
	_ = wrapped.Storage.Keys()
	_, err := wrapped.FS.Read(ctx, "/a")
	require.NoError(t, err)
	_, err = wrapped.FS.List(ctx, "/")
	require.NoError(t, err)
	_, err = wrapped.FS.Exists(ctx, "/a")
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Log().Len())
}

func TestRecordingAllMutations(t *testing.T) {
	target, mfs := newTarget()
	rec := NewRecorder(nil, nil)
	w := rec.Wrap(target)
	ctx := context.Background()

	require.NoError(t, w.FS.Write(ctx, "/a", "1"))
	require.NoError(t, w.FS.Delete(ctx, "/a"))
	require.NoError(t, w.Env.Set("K", "v"))
	require.NoError(t, w.Env.Delete("K"))
	require.NoError(t, w.Storage.SetItem("S", "v"))
	require.NoError(t, w.Storage.RemoveItem("S"))
	require.NoError(t, w.Storage.Clear())

	var ops []string
	for _, e := range rec.Log().Entries() {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []string{
		statelog.OpFSWrite, statelog.OpFSDelete,
		statelog.OpEnvSet, statelog.OpEnvDelete,
		statelog.OpStorageSet, statelog.OpStorageDelete, statelog.OpStorageClear,
	}, ops)
	assert.Empty(t, mfs.Snapshot())
}

func TestRecordingFailedLiveCallAppendsNothing(t *testing.T) {
	rec := NewRecorder(nil, nil)
	fsys := rec.FS(failingFS{NewMemoryFS()})
	ctx := context.Background()

	err := fsys.Write(ctx, "/a", "1")
	require.Error(t, err)
	var fe *FileSystemError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "write", fe.Op)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, statelog.ErrState)

	require.Error(t, fsys.Delete(ctx, "/a"))
	assert.Equal(t, 0, rec.Log().Len())
}

func TestRecordingForwardsToSinkInOrder(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(nil, sink)
	target, _ := newTarget()
	w := rec.Wrap(target)

	require.NoError(t, w.Env.Set("A", "1"))
	require.NoError(t, w.FS.Write(context.Background(), "/f", "x"))
	require.NoError(t, w.Storage.Clear())

	assert.Equal(t, rec.Log().Entries(), sink.entries)
}

func TestRecordingSinkFailureIsReturned(t *testing.T) {
	sink := &captureSink{err: errBoom}
	rec := NewRecorder(nil, sink)
	env := rec.Env(NewMemoryEnv(nil))

	err := env.Set("K", "v")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "persist env.set")
}

func TestRecordingConcurrentCallsAppendOncePerCall(t *testing.T) {
	rec := NewRecorder(nil, nil)
	target, _ := newTarget()
	w := rec.Wrap(target)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = w.FS.Write(ctx, "/shared", "x")
		}()
		go func() {
			defer wg.Done()
			_ = w.Env.Set("K", "v")
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, rec.Log().Len())
}

func TestWrapLeavesNilCapabilities(t *testing.T) {
	rec := NewRecorder(nil, nil)
	w := rec.Wrap(Target{Env: NewMemoryEnv(nil)})
	assert.Nil(t, w.FS)
	assert.Nil(t, w.Transfer)
	assert.Nil(t, w.Storage)
	assert.NotNil(t, w.Env)
}

func TestRecordingTransferUpload(t *testing.T) {
	target, mfs := newTarget()
	rec := NewRecorder(nil, nil)
	w := rec.Wrap(target)
	ctx := context.Background()

	data := []byte("PNGDATA")
	require.NoError(t, w.Transfer.Upload(ctx, data, "/img.png"))
	got, err := w.Transfer.Download(ctx, "/img.png")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ref := statelog.BlobRef(data)
	assert.Equal(t, statelog.New().FS().Upload("/img.png", ref).Entries(), rec.Log().Entries())
	stored, ok, err := target.Blobs.LoadBlob(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, stored)
	assert.Equal(t, map[string]string{"/img.png": "PNGDATA"}, mfs.Snapshot())
}

func TestReplayUploadIntoRecordingTarget(t *testing.T) {
	src, _ := newTarget()
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G'}
	ref := statelog.BlobRef(data)
	require.NoError(t, src.Blobs.SaveBlob(ctx, ref, data))
	log := statelog.New().FS().Upload("/img.png", ref)

	rec := NewRecorder(nil, nil)
	w := rec.Wrap(src)
	require.NoError(t, Replay(ctx, log, w))
	assert.Equal(t, log.Entries(), rec.Log().Entries())
}
