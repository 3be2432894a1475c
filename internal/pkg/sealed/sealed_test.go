package sealed

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpen_RoundTrip(t *testing.T) {
	b, err := New(testKey)
	require.NoError(t, err)

	sealed, err := b.Seal("smtp-password")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "smtp-password")

	plain, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "smtp-password", plain)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	b, err := New(testKey)
	require.NoError(t, err)
	a1, _ := b.Seal("x")
	a2, _ := b.Seal("x")
	assert.NotEqual(t, a1, a2)
}

func TestSeal_EmptyStaysEmpty(t *testing.T) {
	b, err := New(testKey)
	require.NoError(t, err)
	s, err := b.Seal("")
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestOpen_WrongKey(t *testing.T) {
	b, _ := New(testKey)
	other, _ := New(strings.Repeat("ab", 32))
	sealed, err := b.Seal("secret")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestOpen_Tampered(t *testing.T) {
	b, _ := New(testKey)
	sealed, _ := b.Seal("secret")
	tampered := sealed[:len(sealed)-2] + "AA"
	if tampered == sealed {
		tampered = sealed[:len(sealed)-2] + "BB"
	}
	_, err := b.Open(tampered)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestOpen_PlaintextPassthrough(t *testing.T) {
	b, _ := New(testKey)
	v, err := b.Open("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", v)
}

func TestNew_BadKey(t *testing.T) {
	_, err := New("zz")
	require.Error(t, err)
	_, err = New("abcd")
	require.Error(t, err)
}
