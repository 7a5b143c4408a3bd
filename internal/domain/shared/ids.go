package shared

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator allocates identifiers for ETA samples, advisories, and reroutes.
// Injectable so tests can use deterministic ids.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator allocates random UUIDv4 identifiers
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequentialIDGenerator allocates predictable ids for tests ("prefix-1", "prefix-2", ...)
type SequentialIDGenerator struct {
	prefix  string
	counter atomic.Int64
}

func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	return &SequentialIDGenerator{prefix: prefix}
}

func (g *SequentialIDGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.counter.Add(1))
}
