package session

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsTakerToOwner(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	s, err := New(key, solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), s.Owner)
	assert.Equal(t, s.Owner, s.Taker)
}

func TestNew_ExplicitTaker(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	taker := solana.NewWallet().PublicKey()

	s, err := New(key, taker)
	require.NoError(t, err)
	assert.Equal(t, taker, s.Taker)
	assert.NotEqual(t, taker, s.Owner)
}

func TestNew_NoSigner(t *testing.T) {
	_, err := New(nil, solana.PublicKey{})
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestKeyring_ReplaceKeepsCapturedSession(t *testing.T) {
	var k Keyring
	assert.Nil(t, k.Current())

	first, err := New(solana.NewWallet().PrivateKey, solana.PublicKey{})
	require.NoError(t, err)
	k.Set(first)
	captured := k.Current()

	second, err := New(solana.NewWallet().PrivateKey, solana.PublicKey{})
	require.NoError(t, err)
	k.Set(second)

	assert.Same(t, second, k.Current())
	assert.Same(t, first, captured)
}
