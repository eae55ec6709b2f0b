package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve_NewerRemoteWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := Resolve(base, 3, base.Add(time.Minute), 2)
	assert.Equal(t, WinnerRemote, w)
}

func TestResolve_NewerLocalWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := Resolve(base.Add(time.Second), 1, base, 9)
	assert.Equal(t, WinnerLocal, w)
}

func TestResolve_RevisionBreaksTimestampTie(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, WinnerRemote, Resolve(base, 2, base, 3))
	assert.Equal(t, WinnerLocal, Resolve(base, 3, base, 2))
}

func TestResolve_ExactTieKeepsLocal(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, WinnerLocal, Resolve(base, 2, base, 2))
}

func TestRetryBackoff_ExponentialWithCap(t *testing.T) {
	assert.Equal(t, time.Minute, retryBackoff(1))
	assert.Equal(t, 2*time.Minute, retryBackoff(2))
	assert.Equal(t, 4*time.Minute, retryBackoff(3))
	assert.Equal(t, 8*time.Minute, retryBackoff(4))
	// capped from here on
	assert.Equal(t, 10*time.Minute, retryBackoff(5))
	assert.Equal(t, 10*time.Minute, retryBackoff(12))
}
