package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLimits_PerIPCap(t *testing.T) {
	l := NewConnectionLimits(100, 2, 1000, 1000)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = l.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := l.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// A different IP is unaffected
	ok, _ = l.Acquire("10.0.0.2")
	assert.True(t, ok)
}

func TestConnectionLimits_GlobalCap(t *testing.T) {
	l := NewConnectionLimits(2, 10, 1000, 1000)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = l.Acquire("10.0.0.2")
	require.True(t, ok)

	ok, reason := l.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)
	assert.Equal(t, int64(2), l.Current())
}

func TestConnectionLimits_RateLimit(t *testing.T) {
	l := NewConnectionLimits(100, 10, 1, 1)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := l.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}

func TestConnectionLimits_ReleaseFreesSlot(t *testing.T) {
	l := NewConnectionLimits(1, 1, 1000, 1000)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)

	l.Release("10.0.0.1")
	assert.Equal(t, int64(0), l.Current())

	ok, _ = l.Acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_RejectionLeavesNoState(t *testing.T) {
	l := NewConnectionLimits(100, 1, 1000, 1000)

	ok, _ := l.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = l.Acquire("10.0.0.1")
	require.False(t, ok)

	// The rejected attempt must not have claimed a global slot
	assert.Equal(t, int64(1), l.Current())
	assert.Equal(t, 1, l.UniqueIPs())
}
