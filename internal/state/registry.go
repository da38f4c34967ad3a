package state

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/sandboxx/internal/statelog"
)

// Op describes one recordable state operation.
type Op struct {
	// Name is the dotted op recorded in log entries.
	Name string

	// Namespace selects the capability: fs, env or storage.
	Namespace string

	// Method is the capability method that performs the op.
	Method string

	// Args names the method's parameters in call order.
	Args []string

	// Apply performs the op against a target during replay.
	Apply func(ctx context.Context, t Target, args statelog.Args) error
}

var registry = map[string]Op{
	statelog.OpFSWrite: {
		Namespace: statelog.NamespaceFS,
		Method:    "Write",
		Args:      []string{"path", "data"},
		Apply: func(ctx context.Context, t Target, args statelog.Args) error {
			if t.FS == nil {
				return fmt.Errorf("fs: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "path", "data")
			if err != nil {
				return err
			}
			return t.FS.Write(ctx, v[0], v[1])
		},
	},
	statelog.OpFSDelete: {
		Namespace: statelog.NamespaceFS,
		Method:    "Delete",
		Args:      []string{"path"},
		Apply: func(ctx context.Context, t Target, args statelog.Args) error {
			if t.FS == nil {
				return fmt.Errorf("fs: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "path")
			if err != nil {
				return err
			}
			return t.FS.Delete(ctx, v[0])
		},
	},
	statelog.OpFSUpload: {
		Namespace: statelog.NamespaceFS,
		Method:    "Upload",
		Args:      []string{"path", "ref"},
		Apply: func(ctx context.Context, t Target, args statelog.Args) error {
			if t.Transfer == nil || t.Blobs == nil {
				return fmt.Errorf("transfer and blobs: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "path", "ref")
			if err != nil {
				return err
			}
			data, ok, err := t.Blobs.LoadBlob(ctx, v[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", v[1], ErrBlobMissing)
			}
			return t.Transfer.Upload(ctx, data, v[0])
		},
	},
	statelog.OpEnvSet: {
		Namespace: statelog.NamespaceEnv,
		Method:    "Set",
		Args:      []string{"key", "value"},
		Apply: func(_ context.Context, t Target, args statelog.Args) error {
			if t.Env == nil {
				return fmt.Errorf("env: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "key", "value")
			if err != nil {
				return err
			}
			return t.Env.Set(v[0], v[1])
		},
	},
	statelog.OpEnvDelete: {
		Namespace: statelog.NamespaceEnv,
		Method:    "Delete",
		Args:      []string{"key"},
		Apply: func(_ context.Context, t Target, args statelog.Args) error {
			if t.Env == nil {
				return fmt.Errorf("env: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "key")
			if err != nil {
				return err
			}
			return t.Env.Delete(v[0])
		},
	},
	statelog.OpStorageSet: {
		Namespace: statelog.NamespaceStorage,
		Method:    "SetItem",
		Args:      []string{"key", "value"},
		Apply: func(_ context.Context, t Target, args statelog.Args) error {
			if t.Storage == nil {
				return fmt.Errorf("storage: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "key", "value")
			if err != nil {
				return err
			}
			return t.Storage.SetItem(v[0], v[1])
		},
	},
	statelog.OpStorageDelete: {
		Namespace: statelog.NamespaceStorage,
		Method:    "RemoveItem",
		Args:      []string{"key"},
		Apply: func(_ context.Context, t Target, args statelog.Args) error {
			if t.Storage == nil {
				return fmt.Errorf("storage: %w", ErrNoCapability)
			}
			v, err := stringArgs(args, "key")
			if err != nil {
				return err
			}
			return t.Storage.RemoveItem(v[0])
		},
	},
	statelog.OpStorageClear: {
		Namespace: statelog.NamespaceStorage,
		Method:    "Clear",
		Args:      []string{},
		Apply: func(_ context.Context, t Target, _ statelog.Args) error {
			if t.Storage == nil {
				return fmt.Errorf("storage: %w", ErrNoCapability)
			}
			return t.Storage.Clear()
		},
	},
}

// stringArgs extracts the named string arguments in order.
func stringArgs(args statelog.Args, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		s, ok := args.String(name)
		if !ok {
			return nil, fmt.Errorf("argument %q: %w", name, ErrInvalidArgs)
		}
		out[i] = s
	}
	return out, nil
}

// Lookup returns the registered op named name.
func Lookup(name string) (Op, bool) {
	op, ok := registry[name]
	if !ok {
		return Op{}, false
	}
	op.Name = name
	return op, true
}

// FindOp returns the op recorded for a capability method, or false when the
// method is a read that is never recorded.
func FindOp(namespace, method string) (string, bool) {
	for _, name := range opNames() {
		op := registry[name]
		if op.Namespace == namespace && op.Method == method {
			return name, true
		}
	}
	return "", false
}

// ArgsToEntry maps positional call arguments onto the op's argument names.
// An unknown op yields an empty mapping.
func ArgsToEntry(op string, positional ...any) statelog.Args {
	cfg, ok := registry[op]
	if !ok {
		return statelog.Args{}
	}
	args := make(statelog.Args, len(cfg.Args))
	for i, name := range cfg.Args {
		if i < len(positional) {
			args[name] = positional[i]
		}
	}
	return args
}

// Ops returns every registered op, ordered by name.
func Ops() []Op {
	names := opNames()
	out := make([]Op, 0, len(names))
	for _, name := range names {
		op, _ := Lookup(name)
		out = append(out, op)
	}
	return out
}

// OpsForNamespace returns the names of the ops registered under namespace.
func OpsForNamespace(namespace string) []string {
	var out []string
	for _, name := range opNames() {
		if registry[name].Namespace == namespace {
			out = append(out, name)
		}
	}
	return out
}

func opNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// mustFindOp resolves the op for a wrapper method during package
// initialisation. A wrapper method without a registry entry is a
// programming error and stops the process at start-up.
func mustFindOp(namespace, method string) string {
	op, ok := FindOp(namespace, method)
	if !ok {
		panic(fmt.Sprintf("state: no op registered for %s.%s", namespace, method))
	}
	return op
}
