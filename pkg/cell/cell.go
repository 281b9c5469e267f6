// Package cell implements the Cell type: an immutable, content-addressed
// atomic record. A cell is opaque to the domain semantics of its own
// fact payload — it canonicalizes and seals, nothing more.
package cell

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/canonicalize"
	"github.com/decisiongraph/core/pkg/signing"
)

// NullHash is the sentinel prev_cell_hash only Genesis may carry: 64 '0' characters.
const NullHash = "0000000000000000000000000000000000000000000000000000000000000000"

// HashScheme names a seal algorithm. Two are recognized, bit-exactly.
type HashScheme string

const (
	HashSchemeLegacyConcat HashScheme = "legacy:concat:v1"
	HashSchemeCanonicalJCS HashScheme = "canon:rfc8785:v1"
)

// Type is the closed set of cell kinds.
type Type string

const (
	TypeGenesis        Type = "Genesis"
	TypeFact           Type = "Fact"
	TypeRule           Type = "Rule"
	TypeDecision       Type = "Decision"
	TypeEvidence       Type = "Evidence"
	TypeOverride       Type = "Override"
	TypeAccessRule     Type = "AccessRule"
	TypeBridgeRule     Type = "BridgeRule"
	TypeNamespaceDef   Type = "NamespaceDef"
	TypePolicyHead     Type = "PolicyHead"
	TypeSignal         Type = "Signal"
	TypeMitigation     Type = "Mitigation"
	TypeScore          Type = "Score"
	TypeVerdict        Type = "Verdict"
	TypeJustification  Type = "Justification"
	TypePolicyRef      Type = "PolicyRef"
	TypePolicyCitation Type = "PolicyCitation"
	TypeReportRun      Type = "ReportRun"
	TypeJudgment       Type = "Judgment"
)

// SourceQuality ranks how a fact's object value was obtained.
type SourceQuality string

const (
	SourceVerified     SourceQuality = "verified"
	SourceSelfReported SourceQuality = "self_reported"
	SourceInferred     SourceQuality = "inferred"
)

// Rank orders SourceQuality for conflict resolution: higher is better.
func (q SourceQuality) Rank() int {
	switch q {
	case SourceVerified:
		return 2
	case SourceSelfReported:
		return 1
	case SourceInferred:
		return 0
	default:
		return -1
	}
}

// Header carries the fields common to every cell.
type Header struct {
	Version      string     `json:"version"`
	GraphID      string     `json:"graph_id"`
	CellType     Type       `json:"cell_type"`
	SystemTime   string     `json:"system_time"`
	PrevCellHash string     `json:"prev_cell_hash"`
	HashScheme   HashScheme `json:"hash_scheme"`
}

// Fact is the payload naming what the cell asserts.
type Fact struct {
	Namespace     string        `json:"namespace"`
	Subject       string        `json:"subject"`
	Predicate     string        `json:"predicate"`
	Object        interface{}   `json:"object"`
	Confidence    float64       `json:"confidence"`
	SourceQuality SourceQuality `json:"source_quality"`
	ValidFrom     string        `json:"valid_from"`
	ValidTo       *string       `json:"valid_to"`
}

// LogicAnchor names the rule a cell's assertion traces back to.
type LogicAnchor struct {
	RuleID        string `json:"rule_id"`
	RuleLogicHash string `json:"rule_logic_hash"`
	Interpreter   string `json:"interpreter"`
}

// EvidenceEntry is one piece of supporting material for a cell.
type EvidenceEntry struct {
	Type        string `json:"type"`
	ContentID   string `json:"content_id"`
	Source      string `json:"source"`
	PayloadHash string `json:"payload_hash"`
	Description string `json:"description"`
}

// Proof carries the cell's signature metadata.
type Proof struct {
	SignerKeyID       string `json:"signer_key_id"`
	Signature         string `json:"signature"`
	MerkleRoot        string `json:"merkle_root"`
	SignatureRequired bool   `json:"signature_required"`
}

// Cell is the sealed, immutable atomic record. Once returned from Seal,
// every field except CellID is considered read-only by convention — Go
// has no const struct fields, so callers must not mutate a sealed Cell.
type Cell struct {
	Header      Header          `json:"header"`
	Fact        Fact            `json:"fact"`
	LogicAnchor LogicAnchor     `json:"logic_anchor"`
	Evidence    []EvidenceEntry `json:"evidence"`
	Proof       Proof           `json:"proof"`
	CellID      string          `json:"cell_id"`
}

// Seal computes cell_id per header.HashScheme and returns the sealed
// Cell. It never mutates its arguments.
func Seal(header Header, fact Fact, anchor LogicAnchor, evidence []EvidenceEntry, proof Proof) (Cell, error) {
	if err := validateConfidence(fact); err != nil {
		return Cell{}, err
	}

	c := Cell{Header: header, Fact: fact, LogicAnchor: anchor, Evidence: evidence, Proof: proof}

	id, err := computeSeal(c)
	if err != nil {
		return Cell{}, err
	}
	c.CellID = id
	return c, nil
}

func validateConfidence(fact Fact) error {
	if fact.Confidence < 0 || fact.Confidence > 1 {
		return apperr.New(apperr.CodeInvalidField, fmt.Sprintf("confidence %v out of [0,1]", fact.Confidence))
	}
	if fact.Confidence == 1.0 && fact.SourceQuality != SourceVerified {
		return apperr.New(apperr.CodeInvalidField, "confidence 1.0 requires source_quality=verified")
	}
	return nil
}

func computeSeal(c Cell) (string, error) {
	switch c.Header.HashScheme {
	case HashSchemeLegacyConcat:
		return sealLegacy(c)
	case HashSchemeCanonicalJCS:
		return sealCanonical(c)
	default:
		return "", apperr.New(apperr.CodeHashSchemeMismatch, string(c.Header.HashScheme))
	}
}

func sealLegacy(c Cell) (string, error) {
	object, ok := c.Fact.Object.(string)
	if !ok {
		return "", apperr.New(apperr.CodeHashSchemeMismatch, "legacy:concat:v1 requires a string fact.object")
	}
	digest := canonicalize.LegacyConcatHash(
		c.Header.Version,
		c.Header.GraphID,
		string(c.Header.CellType),
		c.Header.SystemTime,
		c.Header.PrevCellHash,
		c.Fact.Namespace,
		c.Fact.Subject,
		c.Fact.Predicate,
		object,
		c.LogicAnchor.RuleID,
		c.LogicAnchor.RuleLogicHash,
	)
	return digest, nil
}

func sealCanonical(c Cell) (string, error) {
	unsealed := c
	unsealed.CellID = ""
	return canonicalize.CanonicalHash(canonicalForm(unsealed))
}

// canonicalForm is the value the canonical scheme encodes: c with
// fact.confidence written as its shortest decimal string, since JCS
// rejects a fractional JSON number.
func canonicalForm(c Cell) interface{} {
	type fact struct {
		Fact
		Confidence string `json:"confidence"`
	}
	return struct {
		Cell
		Fact fact `json:"fact"`
	}{c, fact{c.Fact, strconv.FormatFloat(c.Fact.Confidence, 'f', -1, 64)}}
}

// VerifyIntegrity recomputes the seal and reports whether it matches
// CellID.
func VerifyIntegrity(c Cell) bool {
	id, err := computeSeal(c)
	if err != nil {
		return false
	}
	return id == c.CellID
}

// SigningBytes returns the canonical bytes a signer signs and a verifier
// checks against: the cell with CellID and Proof.Signature cleared,
// JCS-encoded. Producers call this before Seal to build
// Proof.Signature; VerifySignature calls it again to check the result.
func SigningBytes(c Cell) ([]byte, error) {
	unsealed := c
	unsealed.CellID = ""
	unsealed.Proof.Signature = ""
	return canonicalize.JCS(canonicalForm(unsealed))
}

// VerifySignature checks the cell's Ed25519 signature against its
// canonical sealed bytes, resolving the signer's public key through
// resolver. If Proof.SignatureRequired is false, verification is
// trivially satisfied (bootstrap mode).
func VerifySignature(c Cell, resolver signing.KeyResolver) (bool, error) {
	if !c.Proof.SignatureRequired {
		return true, nil
	}
	if c.Proof.Signature == "" || c.Proof.SignerKeyID == "" {
		return false, nil
	}

	bytes, err := SigningBytes(c)
	if err != nil {
		return false, err
	}

	return signing.VerifyWithResolver(resolver, c.Proof.SignerKeyID, c.Proof.Signature, bytes)
}

// HashBytes is a convenience re-export so callers computing a related
// hash (e.g. a witness signature payload) don't need a second import.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
