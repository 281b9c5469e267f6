// Package commitgate validates a candidate cell against the chain it
// would be appended to. Every rule is checked in the declared order;
// the first failure is fatal to that append.
package commitgate

import (
	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/canonicalize"
	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/genesis"
	"github.com/decisiongraph/core/pkg/signing"
)

// ChainView is the minimal view of chain state the gate needs, so this
// package never imports pkg/chain (which imports commitgate).
type ChainView struct {
	GraphID    string
	HashScheme cell.HashScheme
	Head       cell.Cell
	Empty      bool
}

// Validate runs the nine ordered commit rules against next.
func Validate(view ChainView, next cell.Cell, resolver signing.KeyResolver) error {
	// Rule 1 & 2: genesis placement.
	if view.Empty {
		if next.Header.CellType != cell.TypeGenesis {
			return apperr.New(apperr.CodeGenesisViolation, "first cell in an empty chain must be Genesis")
		}
		if ok, failures := genesis.Verify(next, resolver, false); !ok {
			return apperr.Wrap(apperr.CodeGenesisViolation, "genesis validation failed", firstFailure(failures))
		}
		return nil
	}
	if next.Header.CellType == cell.TypeGenesis {
		return apperr.New(apperr.CodeGenesisViolation, "only the first cell in a chain may be Genesis")
	}

	// Rule 3: graph binding.
	if next.Header.GraphID != view.GraphID {
		return apperr.New(apperr.CodeGraphIDMismatch, next.Header.GraphID)
	}

	// Rule 4: hash scheme binding.
	if next.Header.HashScheme != view.HashScheme {
		return apperr.New(apperr.CodeHashSchemeMismatch, string(next.Header.HashScheme))
	}

	// Rule 5: chain linkage.
	if next.Header.PrevCellHash != view.Head.CellID {
		return apperr.New(apperr.CodeChainBreak, next.CellID)
	}

	// Rule 6: integrity.
	if !cell.VerifyIntegrity(next) {
		return apperr.New(apperr.CodeIntegrityViolation, next.CellID)
	}

	// Rule 7: monotonic system_time.
	if next.Header.SystemTime < view.Head.Header.SystemTime {
		return apperr.New(apperr.CodeTemporalViolation, next.CellID)
	}

	// Rule 8: structural validators per cell_type.
	if err := structuralValidate(next); err != nil {
		return err
	}

	// Rule 9: signature, if required.
	if next.Proof.SignatureRequired {
		ok, err := cell.VerifySignature(next, resolver)
		if err != nil || !ok {
			return apperr.New(apperr.CodeSignatureInvalid, next.CellID)
		}
	}

	return nil
}

func firstFailure(failures []genesis.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	return apperr.New(apperr.CodeGenesisViolation, failures[0].Check+": "+failures[0].Message)
}

func structuralValidate(c cell.Cell) error {
	switch c.Header.CellType {
	case cell.TypeBridgeRule:
		return validateBridgeRule(c)
	case cell.TypePolicyHead:
		return validatePolicyHead(c)
	default:
		return nil
	}
}

// validateBridgeRule requires two distinct approval-evidence entries
// (the two namespace owners) and a signature field combining both
// signers (expressed as Proof.Signature over a payload binding both
// signer key ids — the caller constructs that payload; here the gate
// checks the distinctness of the approving evidence and that
// Proof.Signature is non-empty, without verifying it).
func validateBridgeRule(c cell.Cell) error {
	approvals := make(map[string]bool)
	for _, e := range c.Evidence {
		if e.Type == "bridge_approval" {
			approvals[e.Source] = true
		}
	}
	if len(approvals) < 2 {
		return apperr.New(apperr.CodeInvalidField, "BridgeRule requires two distinct approval-evidence entries")
	}
	if c.Proof.Signature == "" {
		return apperr.New(apperr.CodeSignatureInvalid, "BridgeRule requires a combined signature field")
	}
	return nil
}

// validatePolicyHead requires policy_hash == SHA256(sorted(promoted_rule_ids)).
// Both fields are carried in Fact.Object for a PolicyHead cell.
func validatePolicyHead(c cell.Cell) error {
	obj, ok := c.Fact.Object.(map[string]interface{})
	if !ok {
		return apperr.New(apperr.CodeInvalidField, "PolicyHead requires a structured fact.object")
	}
	policyHash, _ := obj["policy_hash"].(string)
	rawIDs, _ := obj["promoted_rule_ids"].([]interface{})

	ids := make([]string, 0, len(rawIDs))
	for _, r := range rawIDs {
		s, ok := r.(string)
		if !ok {
			return apperr.New(apperr.CodeInvalidField, "promoted_rule_ids must be strings")
		}
		ids = append(ids, s)
	}

	if policyHash != canonicalize.PolicyHash(ids) {
		return apperr.New(apperr.CodeInvalidField, "PolicyHead policy_hash does not match SHA256(sorted(promoted_rule_ids))")
	}
	return nil
}
