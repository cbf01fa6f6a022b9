package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pulseledger/internal/ir"
)

// createTestStore opens a fresh file-backed store under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func digest(b byte) ir.Digest {
	var d ir.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func testPulse(id uint64) ir.Pulse {
	return ir.Pulse{
		ID:                id,
		Pilot:             "0xpilot",
		PayloadHash:       digest(0xaa),
		ArtifactCID:       "bafy-artifact",
		LatencyMs:         250,
		ProtocolMode:      1,
		Exposure:          ir.Revealed,
		DeviceFingerprint: digest(0xdd),
		Rounds:            5,
		SubmittedAt:       1700000000,
	}
}

// mustUpdate runs fn in a transaction and fails the test on error.
func mustUpdate(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}
