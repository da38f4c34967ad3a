package harness

import (
	"maps"

	"github.com/roach88/sandboxx/internal/sandbox"
	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
)

// State is the observable state of a session.
type State struct {
	Files   map[string]string `json:"files"`
	Env     map[string]string `json:"env"`
	Storage map[string]string `json:"storage"`
}

func (s State) canonical() map[string]any {
	return map[string]any{
		"files":   s.Files,
		"env":     s.Env,
		"storage": s.Storage,
	}
}

// observe captures the session's env and storage and the files of fs.
func observe(s *sandbox.Session, fs *state.MemoryFS) State {
	storage := make(map[string]string)
	for _, k := range s.Storage().Keys() {
		v, _ := s.Storage().GetItem(k)
		storage[k] = v
	}
	env := maps.Clone(s.Env().All())
	if env == nil {
		env = make(map[string]string)
	}
	return State{
		Files:   fs.Snapshot(),
		Env:     env,
		Storage: storage,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every step behaved as expected and every check held.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	SessionID string `json:"session_id"`

	// Log is the recorded state log.
	Log []statelog.Entry `json:"log"`

	// Compacted is Log after compaction.
	Compacted []statelog.Entry `json:"compacted"`

	// State is the final state of the recording session.
	State State `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
