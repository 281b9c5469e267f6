// Package similarity implements Layer 2 of the precedent engine:
// typed field comparators combined into a driver-aware similarity
// score, non-transferable detection, and match classification against
// the case's proposed outcome.
package similarity

import (
	"github.com/decisiongraph/core/pkg/domainregistry"
	"github.com/decisiongraph/core/pkg/judgment"
	"github.com/decisiongraph/core/pkg/precedent"
)

// Classification is the precedent's relationship to the case's
// proposed outcome.
type Classification string

const (
	ClassificationSupporting Classification = "supporting"
	ClassificationContrary   Classification = "contrary"
	ClassificationNeutral    Classification = "neutral"
)

// Result is one precedent's similarity score and classification.
type Result struct {
	CellID                 string
	Similarity             float64
	NonTransferable        bool
	NonTransferableReasons []string
	Classification         Classification
}

// Score computes the driver-aware similarity of candidate against
// caseFields/caseOutcome, then classifies the precedent relative to
// caseOutcome.
func Score(registry *domainregistry.Registry, caseFields map[string]interface{}, caseOutcome judgment.Outcome, candidate precedent.Candidate) Result {
	drivers := make(map[string]bool, len(candidate.DecisionDrivers))
	for _, d := range candidate.DecisionDrivers {
		drivers[d] = true
	}

	var numerator, denominator float64
	var nonTransferable bool
	var reasons []string

	for name, field := range registry.Fields {
		if field.Tier == domainregistry.TierStructural {
			continue // structural fields are gated, not scored.
		}

		caseVal, caseOk := caseFields[name]
		precVal, precOk := candidate.Fields[name]
		isDriver := drivers[name]

		switch {
		case caseOk && precOk:
			score := compare(field, caseVal, precVal)
			switch {
			case isDriver && score > 0:
				numerator += field.Weight * 2 * score
				denominator += field.Weight * 2
			case isDriver && score == 0:
				nonTransferable = true
				reasons = append(reasons, "driver contradiction on field "+name)
				denominator += field.Weight * 2
			case !isDriver:
				numerator += field.Weight * score
				denominator += field.Weight
			}
		case !caseOk && precOk && isDriver:
			nonTransferable = true
			reasons = append(reasons, "driver field "+name+" absent from case")
		}
	}

	var sim float64
	if denominator > 0 {
		sim = numerator / denominator
	}

	return Result{
		CellID:                 candidate.CellID,
		Similarity:              sim,
		NonTransferable:        nonTransferable,
		NonTransferableReasons: reasons,
		Classification:         classify(caseOutcome, candidate.Outcome, nonTransferable),
	}
}

// compare dispatches to the typed comparator named by field.Comparison,
// returning a score in [0,1].
func compare(field domainregistry.FieldDef, a, b interface{}) float64 {
	switch field.Comparison {
	case domainregistry.ComparisonExact:
		return exact(a, b)
	case domainregistry.ComparisonEquivalenceClass:
		return equivalenceClass(field, a, b)
	case domainregistry.ComparisonDistanceDecay:
		return distanceDecay(field, a, b)
	case domainregistry.ComparisonStep:
		return step(field, a, b)
	case domainregistry.ComparisonJaccard:
		return jaccard(a, b)
	default:
		return exact(a, b)
	}
}

func exact(a, b interface{}) float64 {
	if a == b {
		return 1
	}
	return 0
}

func equivalenceClass(field domainregistry.FieldDef, a, b interface{}) float64 {
	as, aOK := a.(string)
	bs, bOK := b.(string)
	if !aOK || !bOK {
		return exact(a, b)
	}
	ca, caOK := field.EquivalenceClasses[as]
	cb, cbOK := field.EquivalenceClasses[bs]
	if !caOK || !cbOK {
		return exact(a, b)
	}
	if ca == cb {
		return 1
	}
	return 0
}

func distanceDecay(field domainregistry.FieldDef, a, b interface{}) float64 {
	af, aOK := toFloat(a)
	bf, bOK := toFloat(b)
	if !aOK || !bOK || field.DecayRate <= 0 {
		return exact(a, b)
	}
	diff := af - bf
	if diff < 0 {
		diff = -diff
	}
	score := 1 - diff/field.DecayRate
	return clamp01(score)
}

func step(field domainregistry.FieldDef, a, b interface{}) float64 {
	as, aOK := a.(string)
	bs, bOK := b.(string)
	if !aOK || !bOK || len(field.StepOrder) < 2 {
		return exact(a, b)
	}
	ia := indexOf(field.StepOrder, as)
	ib := indexOf(field.StepOrder, bs)
	if ia < 0 || ib < 0 {
		return exact(a, b)
	}
	diff := ia - ib
	if diff < 0 {
		diff = -diff
	}
	maxSteps := len(field.StepOrder) - 1
	return clamp01(1 - float64(diff)/float64(maxSteps))
}

func jaccard(a, b interface{}) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(v interface{}) map[string]bool {
	out := make(map[string]bool)
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok {
				out[s] = true
			}
		}
	case []string:
		for _, s := range t {
			out[s] = true
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func indexOf(values []string, v string) int {
	for i, s := range values {
		if s == v {
			return i
		}
	}
	return -1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// classify implements the seven-step ordered classification rule.
func classify(caseOutcome, precOutcome judgment.Outcome, nonTransferable bool) Classification {
	// 1. UNKNOWN disposition -> neutral.
	if caseOutcome.Disposition == judgment.DispositionUnknown || precOutcome.Disposition == judgment.DispositionUnknown {
		return ClassificationNeutral
	}

	// 2. EDD disposition -> neutral, except EDD vs EDD with
	// non_transferable=false, which falls through to rule 4.
	caseEDD := caseOutcome.Disposition == judgment.DispositionEDD
	precEDD := precOutcome.Disposition == judgment.DispositionEDD
	if caseEDD || precEDD {
		if !(caseEDD && precEDD && !nonTransferable) {
			return ClassificationNeutral
		}
	}

	// 3. Cross-basis -> neutral.
	if isCrossBasis(caseOutcome.DispositionBasis, precOutcome.DispositionBasis) {
		return ClassificationNeutral
	}

	// 4 & 5. Same disposition.
	if caseOutcome.Disposition == precOutcome.Disposition {
		if !nonTransferable {
			return ClassificationSupporting
		}
		return ClassificationNeutral
	}

	// 6. ALLOW <-> BLOCK terminal contradiction.
	if isAllowBlock(caseOutcome.Disposition, precOutcome.Disposition) {
		return ClassificationContrary
	}

	// 7. Otherwise.
	return ClassificationNeutral
}

func isCrossBasis(a, b judgment.DispositionBasis) bool {
	return (a == judgment.BasisMandatory && b == judgment.BasisDiscretionary) ||
		(a == judgment.BasisDiscretionary && b == judgment.BasisMandatory)
}

func isAllowBlock(a, b judgment.Disposition) bool {
	return (a == judgment.DispositionAllow && b == judgment.DispositionBlock) ||
		(a == judgment.DispositionBlock && b == judgment.DispositionAllow)
}
