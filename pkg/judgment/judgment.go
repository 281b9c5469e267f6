// Package judgment seals precedent records: the decision outcomes the
// precedent engine later compares new cases against. A Judgment is a
// Cell like any other — sealed once, appended, never mutated — with a
// fixed rule id and a payload shape the precedent engine depends on.
package judgment

import (
	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/canonicalize"
	"github.com/decisiongraph/core/pkg/cell"
)

const ruleID = "judgment:precedent:v1"

// Disposition is the canonical first field of a judgment's outcome triple.
type Disposition string

const (
	DispositionAllow   Disposition = "ALLOW"
	DispositionEDD     Disposition = "EDD"
	DispositionBlock   Disposition = "BLOCK"
	DispositionUnknown Disposition = "UNKNOWN"
)

// DispositionBasis is the canonical second field of a judgment's outcome triple.
type DispositionBasis string

const (
	BasisMandatory    DispositionBasis = "MANDATORY"
	BasisDiscretionary DispositionBasis = "DISCRETIONARY"
	BasisUnknown       DispositionBasis = "UNKNOWN"
)

// Reporting is the canonical third field of a judgment's outcome triple.
type Reporting string

const (
	ReportingNone     Reporting = "NO_REPORT"
	ReportingSTR      Reporting = "FILE_STR"
	ReportingLCTR     Reporting = "FILE_LCTR"
	ReportingTPR      Reporting = "FILE_TPR"
	ReportingUnknown  Reporting = "UNKNOWN"
)

// Outcome is the three-field canonical outcome every judgment carries.
type Outcome struct {
	Disposition      Disposition      `json:"disposition"`
	DispositionBasis DispositionBasis `json:"disposition_basis"`
	Reporting        Reporting        `json:"reporting"`
}

// Payload is the full content of a Judgment cell's fact.object.
type Payload struct {
	PrecedentID     string                 `json:"precedent_id"`
	CaseIDHash      string                 `json:"case_id_hash"`
	Jurisdiction    string                 `json:"jurisdiction"`
	FingerprintHash string                 `json:"fingerprint_hash"`
	SchemaID        string                 `json:"schema_id"`
	AnchorFacts      map[string]interface{} `json:"anchor_facts"`
	Outcome         Outcome                `json:"outcome"`
	DecisionDrivers []string               `json:"decision_drivers"`
	DriverTypology  string                 `json:"driver_typology"`
	PolicyRegime    string                 `json:"policy_regime"`
	DecisionAuthority string               `json:"decision_authority"`
	AppealOutcome   string                 `json:"appeal_outcome,omitempty"`
}

// Create seals a Judgment cell for payload. Anchor facts must be
// JSON-serializable without any floating-point value anywhere in
// their tree — judgments are hashed the same as any other cell, and a
// non-integral number would make the seal platform-dependent.
func Create(graphID, namespace, systemTime, prevCellHash string, hashScheme cell.HashScheme, payload Payload) (cell.Cell, error) {
	if canonicalize.ContainsFloat(payload.AnchorFacts) {
		return cell.Cell{}, apperr.New(apperr.CodeInvalidField, "judgment anchor_facts must not contain floating-point values")
	}

	header := cell.Header{
		Version:      "1.0",
		GraphID:      graphID,
		CellType:     cell.TypeJudgment,
		SystemTime:   systemTime,
		PrevCellHash: prevCellHash,
		HashScheme:   hashScheme,
	}

	object := map[string]interface{}{
		"precedent_id":       payload.PrecedentID,
		"case_id_hash":       payload.CaseIDHash,
		"jurisdiction":       payload.Jurisdiction,
		"fingerprint_hash":   payload.FingerprintHash,
		"schema_id":          payload.SchemaID,
		"anchor_facts":       payload.AnchorFacts,
		"disposition":        string(payload.Outcome.Disposition),
		"disposition_basis":  string(payload.Outcome.DispositionBasis),
		"reporting":          string(payload.Outcome.Reporting),
		"decision_drivers":   payload.DecisionDrivers,
		"driver_typology":    payload.DriverTypology,
		"policy_regime":      payload.PolicyRegime,
		"decision_authority": payload.DecisionAuthority,
		"appeal_outcome":     payload.AppealOutcome,
	}

	fact := cell.Fact{
		Namespace:     namespace,
		Subject:       "precedent:" + payload.PrecedentID,
		Predicate:     "judged",
		Object:        object,
		Confidence:    1.0,
		SourceQuality: cell.SourceVerified,
		ValidFrom:     systemTime,
	}

	anchor := cell.LogicAnchor{
		RuleID:        ruleID,
		RuleLogicHash: cell.NullHash,
		Interpreter:   "judgment:v1",
	}

	return cell.Seal(header, fact, anchor, nil, cell.Proof{})
}

// DecodeOutcome extracts the three-field outcome triple from a
// Judgment cell's fact.object.
func DecodeOutcome(c cell.Cell) (Outcome, bool) {
	obj, ok := c.Fact.Object.(map[string]interface{})
	if !ok {
		return Outcome{}, false
	}
	d, _ := obj["disposition"].(string)
	b, _ := obj["disposition_basis"].(string)
	r, _ := obj["reporting"].(string)
	return Outcome{
		Disposition:      Disposition(d),
		DispositionBasis: DispositionBasis(b),
		Reporting:        Reporting(r),
	}, true
}
