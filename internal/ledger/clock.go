package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock supplies ledger time in unix seconds. Every record and event
// written by one operation carries the same timestamp.
type Clock interface {
	Now() int64
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() int64 { return time.Now().Unix() }

// TokenGenerator issues the operation token shared by all events of one
// mutation.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-sortable UUIDv7 tokens.
type UUIDv7Generator struct{}

// Generate implements TokenGenerator.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator issues prefix-1, prefix-2, ... for reproducible logs.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator; an empty prefix means "op".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "op"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate implements TokenGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
