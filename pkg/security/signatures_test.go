package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner("")
	require.NoError(t, err)

	doc := []byte("credit BCR-1 retired by alice")
	info, err := signer.Sign(doc, time.Unix(0, 0))
	require.NoError(t, err)

	assert.Equal(t, signer.Address(), info.SignerAddress)
	require.NoError(t, Verify(doc, *info))

	assert.ErrorIs(t, Verify([]byte("credit BCR-1 retired by mallory"), *info), ErrInvalidSignature)

	other, err := NewSigner("")
	require.NoError(t, err)
	forged := *info
	forged.SignerAddress = other.Address()
	assert.ErrorIs(t, Verify(doc, forged), ErrInvalidSignature)
}

func TestNewSignerFromHex(t *testing.T) {
	const key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	a, err := NewSigner(key)
	require.NoError(t, err)
	b, err := NewSigner(key)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())

	_, err = NewSigner("not-hex")
	assert.Error(t, err)
}
