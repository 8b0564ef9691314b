package testutil

import "fmt"

// FixedRunIDGenerator returns predictable run ids ("run-1", "run-2", ...)
// so recorded analysis runs can be compared byte for byte.
//
// Not safe for concurrent use.
type FixedRunIDGenerator struct {
	prefix string
	n      int
}

// NewFixedRunIDGenerator creates a generator. An empty prefix means "run".
func NewFixedRunIDGenerator(prefix string) *FixedRunIDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &FixedRunIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *FixedRunIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
