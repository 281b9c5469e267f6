package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// KeyResolver maps a signer_key_id to the public key that should have
// produced a given signature. The integrator supplies the concrete
// resolver (e.g. backed by a key ceremony record); this package only
// consumes the interface.
type KeyResolver interface {
	Resolve(signerKeyID string) (ed25519.PublicKey, bool)
}

// Verify checks a hex-encoded Ed25519 signature against a hex-encoded
// public key and the signed bytes.
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("signing: invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("signing: invalid signature hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("signing: invalid public key size %d", len(pubKey))
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig), nil
}

// VerifyWithResolver resolves signerKeyID through resolver and checks
// sigHex against data. It returns (false, nil) — not an error — when the
// key cannot be resolved, since an unresolvable key is a normal
// verification failure (SignatureInvalid), not a systemic fault.
func VerifyWithResolver(resolver KeyResolver, signerKeyID string, sigHex string, data []byte) (bool, error) {
	pubKey, ok := resolver.Resolve(signerKeyID)
	if !ok {
		return false, nil
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("signing: invalid signature hex: %w", err)
	}
	return ed25519.Verify(pubKey, data, sig), nil
}
