package statelog

import "sync"

// Log is an ordered record of mutating state operations.
//
// A Log is owned by the session or builder that created it. Appends are
// serialized internally, so completion order of concurrent recorded calls
// is the order entries appear in.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// FromEntries returns a log holding copies of entries, in order.
func FromEntries(entries []Entry) *Log {
	l := &Log{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		l.entries = append(l.entries, e.Clone())
	}
	return l
}

// Record appends an entry for op with args and returns the stored entry.
func (l *Log) Record(op string, args Args) Entry {
	e := NewEntry(op, args)
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e.Clone()
}

func (l *Log) add(op string, args Args) *Log {
	l.Record(op, args)
	return l
}

// Entries returns a snapshot of the log. Mutating the result does not
// affect the log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// FS returns the filesystem builder for l.
func (l *Log) FS() FSBuilder { return FSBuilder{log: l} }

// Env returns the environment builder for l.
func (l *Log) Env() EnvBuilder { return EnvBuilder{log: l} }

// Storage returns the key-value storage builder for l.
func (l *Log) Storage() StorageBuilder { return StorageBuilder{log: l} }

// FSBuilder appends filesystem entries.
type FSBuilder struct{ log *Log }

// Write records fs.write.
func (b FSBuilder) Write(path, data string) *Log {
	return b.log.add(OpFSWrite, Args{"path": path, "data": data})
}

// Delete records fs.delete.
func (b FSBuilder) Delete(path string) *Log {
	return b.log.add(OpFSDelete, Args{"path": path})
}

// Upload records fs.upload; ref addresses the blob holding the content.
func (b FSBuilder) Upload(path, ref string) *Log {
	return b.log.add(OpFSUpload, Args{"path": path, "ref": ref})
}

// EnvBuilder appends environment entries.
type EnvBuilder struct{ log *Log }

// Set records env.set.
func (b EnvBuilder) Set(key, value string) *Log {
	return b.log.add(OpEnvSet, Args{"key": key, "value": value})
}

// Delete records env.delete.
func (b EnvBuilder) Delete(key string) *Log {
	return b.log.add(OpEnvDelete, Args{"key": key})
}

// StorageBuilder appends key-value storage entries.
type StorageBuilder struct{ log *Log }

// Set records storage.set.
func (b StorageBuilder) Set(key, value string) *Log {
	return b.log.add(OpStorageSet, Args{"key": key, "value": value})
}

// Delete records storage.delete.
func (b StorageBuilder) Delete(key string) *Log {
	return b.log.add(OpStorageDelete, Args{"key": key})
}

// Clear records storage.clear.
func (b StorageBuilder) Clear() *Log {
	return b.log.add(OpStorageClear, Args{})
}
