// ABOUTME: Tests for token encryption at rest
// ABOUTME: Covers round trips, empty values, nonce freshness and wrong-key failures
package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("correct horse battery staple")
	require.NoError(t, err)

	enc, err := c.Encrypt("ya29.access-token")
	require.NoError(t, err)
	assert.NotContains(t, enc, "ya29")

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", dec)

	again, err := c.Encrypt("ya29.access-token")
	require.NoError(t, err)
	assert.NotEqual(t, enc, again, "nonce must differ per encryption")
}

func TestCipherEmptyValues(t *testing.T) {
	c, err := NewCipher("k")
	require.NoError(t, err)

	enc, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", enc)

	dec, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", dec)
}

func TestCipherRejectsWrongKeyAndGarbage(t *testing.T) {
	a, err := NewCipher("key-a")
	require.NoError(t, err)
	b, err := NewCipher("key-b")
	require.NoError(t, err)

	enc, err := a.Encrypt("refresh-token")
	require.NoError(t, err)

	_, err = b.Decrypt(enc)
	assert.Error(t, err)

	_, err = a.Decrypt("not base64!")
	assert.Error(t, err)

	_, err = a.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = NewCipher("")
	assert.Error(t, err)
}
