package sealer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewFromHex(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("ya29.access-token"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, []byte("ya29")))

	again, err := s.Seal([]byte("ya29.access-token"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces must differ")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", string(plain))
}

func TestOpenRejectsTamperingAndWrongKey(t *testing.T) {
	s, err := NewFromHex(testKey)
	require.NoError(t, err)
	other, err := NewFromHex(strings.Repeat("ff", 32))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrCiphertextInvalid)

	sealed[len(sealed)-1] ^= 0x01
	_, err = s.Open(sealed)
	assert.ErrorIs(t, err, ErrCiphertextInvalid)

	_, err = s.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New([]byte("too short"))
	assert.Error(t, err)

	_, err = NewFromHex("zz")
	assert.Error(t, err)
}
