package testutil

// FixedIDGenerator generates the same session ID every time.
//
// The same scenario with the same FixedIDGenerator writes its log under the
// same store key, which keeps golden output stable.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed ID generator. If id is empty,
// Generate() returns "sandbox-test".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "sandbox-test"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
