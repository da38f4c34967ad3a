package sandbox

import (
	"sync"

	"github.com/google/uuid"
)

// IDPrefix starts every generated session ID.
const IDPrefix = "sandbox-"

// IDGenerator produces session IDs. IDs become store keys, so they must
// only contain letters, digits, '.', '_' and '-'.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable session IDs of the form
// "sandbox-<uuidv7>", so listing stored logs lists sessions by creation.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return IDPrefix + uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs in order, for tests.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate panics once every ID has been used, which catches a test that
// creates more sessions than it expects.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
