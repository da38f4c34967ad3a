package statelog

import "slices"

// lastWriter keeps the latest entry per key, ordered by the position of
// each key's latest entry. Deletes are recursive, so a rewritten key must
// not move ahead of an entry that came between its writes.
type lastWriter struct {
	order  []string
	latest map[string]Entry
}

func newLastWriter() *lastWriter {
	return &lastWriter{latest: make(map[string]Entry)}
}

func (w *lastWriter) set(key string, e Entry) {
	if _, ok := w.latest[key]; ok {
		w.order = slices.DeleteFunc(w.order, func(k string) bool { return k == key })
	}
	w.order = append(w.order, key)
	w.latest[key] = e
}

func (w *lastWriter) reset() {
	w.order = nil
	w.latest = make(map[string]Entry)
}

func (w *lastWriter) appendTo(out []Entry) []Entry {
	for _, k := range w.order {
		out = append(out, w.latest[k].Clone())
	}
	return out
}

// Compact returns a new log with redundant history collapsed. The receiver
// is not modified.
//
// Filesystem entries collapse per path and environment entries per key,
// keeping the last operation. A storage.clear drops every storage entry
// before it; storage entries after the last clear collapse per key.
//
// The result lists fs entries, then env entries, then the clear (if any),
// then storage entries, then entries whose op this package does not know,
// in their original order. Cross-namespace interleaving is not preserved;
// replaying the result yields the same final state as replaying l.
func (l *Log) Compact() *Log {
	fs := newLastWriter()
	env := newLastWriter()
	storage := newLastWriter()
	var clear *Entry
	var other []Entry

	for _, e := range l.Entries() {
		switch e.Op {
		case OpFSWrite, OpFSDelete, OpFSUpload:
			if path, ok := e.Args.String("path"); ok {
				fs.set(path, e)
				continue
			}
		case OpEnvSet, OpEnvDelete:
			if key, ok := e.Args.String("key"); ok {
				env.set(key, e)
				continue
			}
		case OpStorageSet, OpStorageDelete:
			if key, ok := e.Args.String("key"); ok {
				storage.set(key, e)
				continue
			}
		case OpStorageClear:
			c := e
			clear = &c
			storage.reset()
			continue
		}
		other = append(other, e)
	}

	out := make([]Entry, 0, len(fs.order)+len(env.order)+len(storage.order)+len(other)+1)
	out = fs.appendTo(out)
	out = env.appendTo(out)
	if clear != nil {
		out = append(out, clear.Clone())
	}
	out = storage.appendTo(out)
	out = append(out, other...)
	return &Log{entries: out}
}
