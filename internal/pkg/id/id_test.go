package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsValidULID(t *testing.T) {
	_, err := ulid.ParseStrict(New())
	require.NoError(t, err)
}

func TestNewAt_SortsByTime(t *testing.T) {
	base := time.Now()
	earlier := NewAt(base)
	later := NewAt(base.Add(time.Millisecond))
	assert.Less(t, earlier, later)

	parsed, err := ulid.ParseStrict(earlier)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(base), parsed.Time())
}

func TestNewAt_SameMillisecondKeepsCallOrder(t *testing.T) {
	at := time.Now()
	prev := NewAt(at)
	for i := 0; i < 500; i++ {
		next := NewAt(at)
		require.Less(t, prev, next, "iteration %d", i)
		prev = next
	}
}
