package statelog

import (
	"maps"
	"strings"
)

// Namespaces of the state capabilities an entry can target.
const (
	NamespaceFS      = "fs"
	NamespaceEnv     = "env"
	NamespaceStorage = "storage"
)

// Op names understood by the builders in this package.
const (
	OpFSWrite       = "fs.write"
	OpFSDelete      = "fs.delete"
	OpFSUpload      = "fs.upload"
	OpEnvSet        = "env.set"
	OpEnvDelete     = "env.delete"
	OpStorageSet    = "storage.set"
	OpStorageDelete = "storage.delete"
	OpStorageClear  = "storage.clear"
)

// Args holds the named arguments of an entry.
type Args map[string]any

// String returns the named argument as a string and whether it was present
// with a string value.
func (a Args) String(name string) (string, bool) {
	v, ok := a[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Entry is one recorded state operation.
type Entry struct {
	Op   string `json:"op"`
	Args Args   `json:"args"`
}

// NewEntry builds an entry with a non-nil argument map.
func NewEntry(op string, args Args) Entry {
	if args == nil {
		args = Args{}
	}
	return Entry{Op: op, Args: args}
}

// Namespace returns the part of Op before the first dot.
func (e Entry) Namespace() string {
	ns, _, _ := strings.Cut(e.Op, ".")
	return ns
}

// Verb returns the part of Op after the first dot.
func (e Entry) Verb() string {
	_, verb, _ := strings.Cut(e.Op, ".")
	return verb
}

// Clone returns a copy of e whose argument map is not shared with e.
func (e Entry) Clone() Entry {
	args := maps.Clone(e.Args)
	if args == nil {
		args = Args{}
	}
	return Entry{Op: e.Op, Args: args}
}
