package testutil

// FixedTokenGenerator returns the same operation token every time.
//
// Useful when a test compares whole events and does not care which
// operation produced them.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator; an empty token means
// "test-op".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-op"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
