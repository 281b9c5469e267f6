package cell

import (
	"testing"

	"github.com/decisiongraph/core/pkg/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyHeader() Header {
	return Header{
		Version:      "1.0",
		GraphID:      "graph:11111111-1111-4111-8111-111111111111",
		CellType:     TypeFact,
		SystemTime:   "2026-01-02T00:00:00Z",
		PrevCellHash: NullHash,
		HashScheme:   HashSchemeLegacyConcat,
	}
}

func baseFact(object interface{}) Fact {
	return Fact{
		Namespace:     "acme.hr",
		Subject:       "employee:jane_doe",
		Predicate:     "has_salary",
		Object:        object,
		Confidence:    0.9,
		SourceQuality: SourceSelfReported,
		ValidFrom:     "2026-01-01T00:00:00Z",
	}
}

func TestSeal_Legacy_Deterministic(t *testing.T) {
	h := legacyHeader()
	f := baseFact("150000")
	c1, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.NoError(t, err)
	c2, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.NoError(t, err)

	assert.Equal(t, c1.CellID, c2.CellID)
	assert.Len(t, c1.CellID, 64)
}

func TestSeal_Legacy_RejectsStructuredObject(t *testing.T) {
	h := legacyHeader()
	f := baseFact(map[string]interface{}{"amount": "150000"})
	_, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.Error(t, err)
}

func TestSeal_Canonical_AllowsStructuredObject(t *testing.T) {
	h := legacyHeader()
	h.HashScheme = HashSchemeCanonicalJCS
	f := baseFact(map[string]interface{}{"amount": "150000"})
	c, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.NoError(t, err)
	assert.True(t, VerifyIntegrity(c))
}

func TestSeal_MutationInvalidatesSeal(t *testing.T) {
	h := legacyHeader()
	f := baseFact("150000")
	c, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.NoError(t, err)

	mutated := c
	mutated.Fact.Object = "999999"
	assert.False(t, VerifyIntegrity(mutated))
}

func TestSeal_ConfidenceOne_RequiresVerified(t *testing.T) {
	h := legacyHeader()
	f := baseFact("150000")
	f.Confidence = 1.0
	f.SourceQuality = SourceSelfReported
	_, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.Error(t, err)

	f.SourceQuality = SourceVerified
	_, err = Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.NoError(t, err)
}

func TestSeal_ConfidenceOutOfRange(t *testing.T) {
	h := legacyHeader()
	f := baseFact("150000")
	f.Confidence = 1.5
	_, err := Seal(h, f, LogicAnchor{}, nil, Proof{})
	require.Error(t, err)
}

func TestVerifySignature_BootstrapSkipsVerification(t *testing.T) {
	h := legacyHeader()
	f := baseFact("150000")
	c, err := Seal(h, f, LogicAnchor{}, nil, Proof{SignatureRequired: false})
	require.NoError(t, err)

	ok, err := VerifySignature(c, signing.NewKeyRing())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifySignature_RequiredAndValid(t *testing.T) {
	h := legacyHeader()
	h.HashScheme = HashSchemeCanonicalJCS
	f := baseFact(map[string]interface{}{"amount": "150000"})

	signer, err := signing.NewSigner("key-1")
	require.NoError(t, err)
	ring := signing.NewKeyRing()
	ring.AddSigner(signer)

	unsealedProof := Proof{SignerKeyID: "key-1", SignatureRequired: true}
	c, err := Seal(h, f, LogicAnchor{}, nil, unsealedProof)
	require.NoError(t, err)

	bytes, err := SigningBytes(c)
	require.NoError(t, err)
	sig, err := signer.Sign(bytes)
	require.NoError(t, err)
	c.Proof.Signature = sig

	resealed, err := Seal(h, f, LogicAnchor{}, nil, c.Proof)
	require.NoError(t, err)

	ok, err := VerifySignature(resealed, ring)
	require.NoError(t, err)
	assert.True(t, ok)
}
