// Package signing provides Ed25519 signing and verification over the
// canonical byte sequences the rest of the module produces. It has no
// knowledge of Cell, Judgment, or PolicyHead shapes — callers canonicalize
// their own payload (typically via pkg/canonicalize) and pass the
// resulting bytes through Sign/Verify.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const namespaceKeyDerivationSalt = "decisiongraph-namespace-kdf"

// Signer produces Ed25519 signatures and exposes the key identity that
// verifiers resolve back to a public key via a KeyResolver.
type Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	KeyID   string
}

// NewSigner generates a fresh Ed25519 keypair bound to keyID.
func NewSigner(keyID string) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signing: key generation failed: %w", err)
	}
	return &Signer{privKey: priv, pubKey: pub, KeyID: keyID}, nil
}

// NewSignerFromKey wraps an existing private key, e.g. one loaded from a
// key ceremony artifact rather than generated in-process.
func NewSignerFromKey(priv ed25519.PrivateKey, keyID string) *Signer {
	return &Signer{privKey: priv, pubKey: priv.Public().(ed25519.PublicKey), KeyID: keyID}
}

// Sign returns the hex-encoded Ed25519 signature over data.
func (s *Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, data)
	return hex.EncodeToString(sig), nil
}

// PublicKey returns the hex-encoded public key.
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// PublicKeyBytes returns the raw public key.
func (s *Signer) PublicKeyBytes() ed25519.PublicKey {
	return s.pubKey
}

// DeriveForNamespace derives a namespace-scoped signing subkey from s via
// HKDF-SHA256 over s's Ed25519 seed, using namespace as the HKDF info
// parameter. The same (master key, namespace) pair always yields the same
// subkey, so a namespace's signing identity can be reconstructed without
// persisting it separately, while a compromised subkey never exposes the
// master seed.
func (s *Signer) DeriveForNamespace(namespace, keyID string) (*Signer, error) {
	if namespace == "" {
		return nil, fmt.Errorf("signing: namespace must not be empty")
	}

	reader := hkdf.New(sha256.New, s.privKey.Seed(), []byte(namespaceKeyDerivationSalt), []byte(namespace))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("signing: namespace key derivation failed: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return NewSignerFromKey(priv, keyID), nil
}
