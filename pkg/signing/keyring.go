package signing

import (
	"crypto/ed25519"
	"sync"
)

// KeyRing is a concurrency-safe KeyResolver backed by an in-memory map of
// signer_key_id to public key. It is the reference resolver implementation
// an integrator can use directly, or replace with one backed by a key
// ceremony store — Cell/PolicyHead/Judgment verification only depends on
// the KeyResolver interface, never on KeyRing itself.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PublicKey
}

// NewKeyRing creates a new empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]ed25519.PublicKey)}
}

// AddKey registers keyID's public key, overwriting any prior entry — the
// mechanism by which key rotation is expressed: a new signer_key_id for
// the same logical signer, with the old key left resolvable until
// explicitly revoked.
func (k *KeyRing) AddKey(keyID string, pubKey ed25519.PublicKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[keyID] = pubKey
}

// AddSigner is a convenience wrapper registering a *Signer's own key
// under its own KeyID.
func (k *KeyRing) AddSigner(s *Signer) {
	k.AddKey(s.KeyID, s.PublicKeyBytes())
}

// RevokeKey removes keyID from the ring. Cells already sealed with a
// revoked key remain valid unless the integrator re-runs verification
// against a resolver that no longer serves that key — revocation is a
// policy decision outside this package's scope.
func (k *KeyRing) RevokeKey(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, keyID)
}

// Resolve implements KeyResolver.
func (k *KeyRing) Resolve(signerKeyID string) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pk, ok := k.keys[signerKeyID]
	return pk, ok
}
