// Package session holds the signing identity used by swaps and balance lookups.
package session

import (
	"errors"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
)

// ErrNoSigner is returned when a session is built without a key.
var ErrNoSigner = errors.New("session requires a private key")

// Session is the explicit configuration handed to every swap and balance task.
// A Session never changes after New returns.
type Session struct {
	Signer solana.PrivateKey
	Owner  solana.PublicKey
	// Taker is the address placed on orders. It defaults to Owner.
	Taker solana.PublicKey
}

// New builds a session for signer. A zero taker means the signer's own address.
func New(signer solana.PrivateKey, taker solana.PublicKey) (*Session, error) {
	if len(signer) == 0 {
		return nil, ErrNoSigner
	}
	owner := signer.PublicKey()
	if taker.IsZero() {
		taker = owner
	}
	return &Session{
		Signer: signer,
		Owner:  owner,
		Taker:  taker,
	}, nil
}

// Keyring tracks the current session. Replacing it does not affect tasks
// that already captured the previous one.
type Keyring struct {
	current atomic.Pointer[Session]
}

// Current returns the active session or nil when no key has been set.
func (k *Keyring) Current() *Session {
	return k.current.Load()
}

// Set installs s as the active session.
func (k *Keyring) Set(s *Session) {
	k.current.Store(s)
}
