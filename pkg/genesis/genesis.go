// Package genesis creates and validates the root cell of a chain: the
// cell establishing graph identity, root namespace, and (in non-bootstrap
// mode) the first signature.
package genesis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/namespace"
	"github.com/decisiongraph/core/pkg/signing"
	"github.com/google/uuid"
)

const (
	rootSubject     = "graph:root"
	rootPredicate   = "instance_of"
	genesisRuleID   = "genesis:root:v1"
	genesisRuleHash = "0000000000000000000000000000000000000000000000000000000000000000"
	genesisInterp   = "genesis:v1"
)

// Options configure Create.
type Options struct {
	GraphName     string
	RootNamespace string
	Creator       string
	SystemTime    string // ISO-8601 UTC, e.g. "2026-01-02T00:00:00Z"
	HashScheme    cell.HashScheme
	Bootstrap     bool
	Signer        *signing.Signer // nil in bootstrap mode
}

// Create emits the root cell for a new graph.
func Create(opts Options) (cell.Cell, error) {
	if err := namespace.ValidateRoot(opts.RootNamespace); err != nil {
		return cell.Cell{}, fmt.Errorf("genesis: invalid root namespace %q: %w", opts.RootNamespace, err)
	}

	graphID := fmt.Sprintf("graph:%s", uuid.New().String())

	header := cell.Header{
		Version:      "1.0",
		GraphID:      graphID,
		CellType:     cell.TypeGenesis,
		SystemTime:   opts.SystemTime,
		PrevCellHash: cell.NullHash,
		HashScheme:   opts.HashScheme,
	}

	var object interface{} = opts.GraphName
	if opts.HashScheme == cell.HashSchemeCanonicalJCS {
		object = map[string]interface{}{"graph_name": opts.GraphName, "creator": opts.Creator}
	}

	fact := cell.Fact{
		Namespace:     opts.RootNamespace,
		Subject:       rootSubject,
		Predicate:     rootPredicate,
		Object:        object,
		Confidence:    1.0,
		SourceQuality: cell.SourceVerified,
		ValidFrom:     opts.SystemTime,
		ValidTo:       nil,
	}

	anchor := cell.LogicAnchor{
		RuleID:        genesisRuleID,
		RuleLogicHash: genesisRuleHash,
		Interpreter:   genesisInterp,
	}

	proof := cell.Proof{SignatureRequired: !opts.Bootstrap}
	sealed, err := cell.Seal(header, fact, anchor, nil, proof)
	if err != nil {
		return cell.Cell{}, err
	}

	if opts.Bootstrap || opts.Signer == nil {
		return sealed, nil
	}

	sealed.Proof.SignerKeyID = opts.Signer.KeyID
	payload, err := cell.SigningBytes(sealed)
	if err != nil {
		return cell.Cell{}, err
	}
	sig, err := opts.Signer.Sign(payload)
	if err != nil {
		return cell.Cell{}, err
	}
	sealed.Proof.Signature = sig

	return cell.Seal(header, fact, anchor, nil, sealed.Proof)
}

// Failure describes one failed genesis structural check.
type Failure struct {
	Check   string
	Message string
}

// Verify runs the 22 structural checks a genesis cell must satisfy.
// A cell with SignatureRequired == true must carry a signature that
// verifies through resolver. A bootstrap-mode cell (SignatureRequired ==
// false) is accepted without a signature in either mode; strictSignature,
// when true, additionally rejects a bootstrap-mode cell that carries a
// signature, which is otherwise ignored.
func Verify(c cell.Cell, resolver signing.KeyResolver, strictSignature bool) (bool, []Failure) {
	var failures []Failure
	fail := func(check, msg string) { failures = append(failures, Failure{Check: check, Message: msg}) }

	// Header checks (5).
	if c.Header.CellType != cell.TypeGenesis {
		fail("header.cell_type", "must be Genesis")
	}
	if c.Header.PrevCellHash != cell.NullHash {
		fail("header.prev_cell_hash", "must be NULL_HASH")
	}
	if c.Header.Version == "" {
		fail("header.version", "must be present")
	}
	if !graphIDRE.MatchString(c.Header.GraphID) {
		fail("header.graph_id", "must match graph:<uuid-v4>")
	}
	if !isUTCZ(c.Header.SystemTime) {
		fail("header.system_time", "must be ISO-8601 UTC ending in Z")
	}

	// Fact checks (9).
	if strings.Contains(c.Fact.Namespace, ".") {
		fail("fact.namespace", "root namespace must have no dots")
	}
	if c.Fact.Subject != rootSubject {
		fail("fact.subject", `must be "graph:root"`)
	}
	if c.Fact.Predicate != rootPredicate {
		fail("fact.predicate", `must be "instance_of"`)
	}
	if isEmptyObject(c.Fact.Object) {
		fail("fact.object", "must be non-empty")
	}
	if c.Fact.Confidence != 1.0 {
		fail("fact.confidence", "must be 1.0")
	}
	if c.Fact.SourceQuality != cell.SourceVerified {
		fail("fact.source_quality", "must be verified")
	}
	if !isUTCZ(c.Fact.ValidFrom) {
		fail("fact.valid_from", "must be UTC-Z")
	}
	if c.Fact.ValidTo != nil {
		fail("fact.valid_to", "must be null")
	}
	if c.Fact.ValidFrom != c.Header.SystemTime {
		fail("fact.valid_from_eq_system_time", "valid_from must equal system_time")
	}

	// Logic-anchor checks (3).
	if c.LogicAnchor.RuleID != genesisRuleID {
		fail("logic_anchor.rule_id", "must be the fixed genesis rule id")
	}
	if c.LogicAnchor.RuleLogicHash != genesisRuleHash {
		fail("logic_anchor.rule_logic_hash", "must be the fixed genesis rule hash")
	}
	if c.LogicAnchor.Interpreter != genesisInterp {
		fail("logic_anchor.interpreter", "must be the fixed genesis interpreter")
	}

	// Evidence check (1).
	if len(c.Evidence) != 0 {
		fail("evidence", "must be empty")
	}

	// Proof checks (3): presence rules by mode, never both signature
	// absent and signature_required true, never both present and false.
	hasSig := c.Proof.Signature != ""
	switch {
	case c.Proof.SignatureRequired && !hasSig:
		fail("proof.signature_presence", "signature_required but signature missing")
	case !c.Proof.SignatureRequired && hasSig && strictSignature:
		fail("proof.signature_presence", "bootstrap mode must not carry a signature under strict verification")
	}
	if c.Proof.SignatureRequired || (strictSignature && hasSig) {
		ok, err := cell.VerifySignature(c, resolver)
		if err != nil || !ok {
			fail("proof.signature_valid", "signature does not verify")
		}
	}

	// Integrity check (1).
	if !cell.VerifyIntegrity(c) {
		fail("integrity", "cell_id does not match recomputed seal")
	}

	return len(failures) == 0, failures
}

var graphIDRE = regexp.MustCompile(`^graph:[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

var utcZRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z$`)

func isUTCZ(s string) bool { return utcZRE.MatchString(s) }

func isEmptyObject(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
