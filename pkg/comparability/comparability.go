// Package comparability implements Layer 1 of the precedent engine:
// the comparability gate. A precedent passes only if every registry
// gate matches between the case and the precedent; an ambiguous value
// never disqualifies a precedent outright, since the gate's job is to
// rule out provably-incomparable cases, not to score similarity.
package comparability

import (
	"github.com/decisiongraph/core/pkg/domainregistry"
	"github.com/decisiongraph/core/pkg/precedent"
)

// Warning records a non-fatal gate condition worth surfacing to a caller.
type Warning struct {
	Field  string
	Reason string
}

const basisField = "disposition_basis"
const basisMandatory = "MANDATORY"
const basisDiscretionary = "DISCRETIONARY"

// Passes reports whether candidate is comparable to caseFields under
// every gate in registry, and any warnings raised along the way.
func Passes(registry *domainregistry.Registry, caseFields map[string]interface{}, candidate precedent.Candidate) (bool, []Warning) {
	var warnings []Warning

	for _, gate := range registry.ComparabilityGates {
		ok, w := evaluateGate(registry, gate, caseFields, candidate)
		if w != nil {
			warnings = append(warnings, *w)
		}
		if !ok {
			return false, warnings
		}
	}
	return true, warnings
}

func evaluateGate(registry *domainregistry.Registry, gate domainregistry.Gate, caseFields map[string]interface{}, candidate precedent.Candidate) (bool, *Warning) {
	caseVal, caseOk := caseFields[gate.Field]
	precVal, precOk := candidate.Fields[gate.Field]

	// Hard rule (INV-008): disposition_basis never admits a
	// MANDATORY/DISCRETIONARY pairing, independent of how the registry
	// configures the gate.
	if gate.Field == basisField && caseOk && precOk {
		cs, _ := caseVal.(string)
		ps, _ := precVal.(string)
		if (cs == basisMandatory && ps == basisDiscretionary) || (cs == basisDiscretionary && ps == basisMandatory) {
			return false, nil
		}
	}

	if !caseOk {
		return true, &Warning{Field: gate.Field, Reason: "case value missing; fell back to broadest equivalence class"}
	}
	if !precOk {
		return true, nil
	}

	if gate.CEL != "" {
		ok, err := registry.EvaluateGate(gate, caseVal, precVal)
		if err != nil {
			// An evaluation fault cannot prove incomparability.
			return true, &Warning{Field: gate.Field, Reason: "gate predicate failed to evaluate: " + err.Error()}
		}
		return ok, nil
	}

	field, ok := registry.Field(gate.Field)
	if !ok {
		if gate.Field == basisField {
			// The hard rule above is the whole check for a
			// disposition_basis gate the registry does not configure.
			return true, nil
		}
		return true, &Warning{Field: gate.Field, Reason: "field not defined in registry"}
	}

	caseClass, caseClassified := classify(field, caseVal)
	precClass, precClassified := classify(field, precVal)
	if !caseClassified || !precClassified {
		return true, &Warning{Field: gate.Field, Reason: "value unclassifiable; cannot prove incomparable"}
	}
	return caseClass == precClass, nil
}

func classify(field domainregistry.FieldDef, value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	class, ok := field.EquivalenceClasses[s]
	if !ok {
		return "", false
	}
	return class, true
}

// Filter applies Passes to every candidate, returning the ones that
// are comparable and a per-cell-id warning list.
func Filter(registry *domainregistry.Registry, caseFields map[string]interface{}, candidates []precedent.Candidate) ([]precedent.Candidate, map[string][]Warning) {
	var passed []precedent.Candidate
	warnings := make(map[string][]Warning)

	for _, c := range candidates {
		ok, w := Passes(registry, caseFields, c)
		if len(w) > 0 {
			warnings[c.CellID] = w
		}
		if ok {
			passed = append(passed, c)
		}
	}
	return passed, warnings
}
