// Package reasoner assembles the comparability, similarity, and
// confidence layers into the precedent engine's single public
// operation: scoring a proposed case against its fingerprint's pool of
// sealed Judgments and returning a governed PrecedentReport. It lives
// apart from pkg/precedent so that comparability and similarity can
// both depend on precedent's Candidate type without an import cycle.
package reasoner

import (
	"sort"

	"github.com/decisiongraph/core/pkg/comparability"
	"github.com/decisiongraph/core/pkg/confidence"
	"github.com/decisiongraph/core/pkg/domainregistry"
	"github.com/decisiongraph/core/pkg/judgment"
	"github.com/decisiongraph/core/pkg/precedent"
	"github.com/decisiongraph/core/pkg/similarity"
)

// ScoredPrecedent is one candidate carried through all three layers.
type ScoredPrecedent struct {
	Candidate              precedent.Candidate
	Similarity             float64
	Classification         similarity.Classification
	NonTransferable        bool
	NonTransferableReasons []string
	ComparabilityWarnings  []comparability.Warning
}

// DistinguishingFactor names one field where a top precedent and the
// case disagree, for the precedent's top-K detail.
type DistinguishingFactor struct {
	Field          string
	CaseValue      interface{}
	PrecedentValue interface{}
}

// Divergence explains why the proposed disposition disagrees with the
// decisive pool's majority.
type Divergence struct {
	ProposedDisposition judgment.Disposition
	PoolMajority        judgment.Disposition
	SupportingCount     int
	ContraryCount       int
}

// Report is the precedent engine's score(case_facts, domain_id) result.
type Report struct {
	Supporting      []ScoredPrecedent
	Contrary        []ScoredPrecedent
	Neutral         []ScoredPrecedent
	BelowFloor      []ScoredPrecedent
	NonTransferable []ScoredPrecedent

	Confidence confidence.Report

	// DistinguishingFactors holds, for each of the top-K (by
	// similarity) supporting and contrary precedents, the fields where
	// its value differs from the case's.
	DistinguishingFactors map[string][]DistinguishingFactor

	// Divergence is non-nil only when the proposed disposition
	// disagrees with the decisive pool's majority outcome.
	Divergence *Divergence
}

// Request bundles score's inputs.
type Request struct {
	Registry        *domainregistry.Registry
	Precedents      *precedent.Registry
	CaseFields      map[string]interface{}
	CaseOutcome     judgment.Outcome
	NamespacePrefix string
	AsOfSystemTime  string
	FingerprintHash string
	TopK            int
	Presence        confidence.RequiredFieldPresence
}

// Score runs the full three-layer precedent pipeline: Layer 1 filters
// the fingerprint's candidate pool to comparable precedents, Layer 2
// scores and classifies each survivor, and Layer 3 computes governed
// confidence over the scored pool. Precedents below the registry's
// similarity floor, and those flagged non-transferable, are excluded
// from the decisive pools but still reported for visibility.
func Score(req Request) Report {
	topK := req.TopK
	if topK <= 0 {
		topK = 3
	}

	candidates := req.Precedents.FindByFingerprint(req.FingerprintHash, req.NamespacePrefix, req.AsOfSystemTime)
	passing, warnings := comparability.Filter(req.Registry, req.CaseFields, candidates)

	var report Report
	var scoredPool []similarity.Result

	for _, cand := range passing {
		result := similarity.Score(req.Registry, req.CaseFields, req.CaseOutcome, cand)
		sp := ScoredPrecedent{
			Candidate:              cand,
			Similarity:             result.Similarity,
			Classification:         result.Classification,
			NonTransferable:        result.NonTransferable,
			NonTransferableReasons: result.NonTransferableReasons,
			ComparabilityWarnings:  warnings[cand.CellID],
		}

		floor := req.Registry.SimilarityFloorFor(cand.DriverTypology)
		switch {
		case result.Similarity < floor:
			report.BelowFloor = append(report.BelowFloor, sp)
		case result.NonTransferable:
			report.NonTransferable = append(report.NonTransferable, sp)
		default:
			scoredPool = append(scoredPool, result)
			switch result.Classification {
			case similarity.ClassificationSupporting:
				report.Supporting = append(report.Supporting, sp)
			case similarity.ClassificationContrary:
				report.Contrary = append(report.Contrary, sp)
			default:
				report.Neutral = append(report.Neutral, sp)
			}
		}
	}

	sortDescending(report.Supporting)
	sortDescending(report.Contrary)
	sortDescending(report.Neutral)

	report.Confidence = confidence.Compute(scoredPool, req.Registry.PoolMinimum, req.Presence)
	report.DistinguishingFactors = distinguishingFactors(req.Registry, req.CaseFields, report.Supporting, report.Contrary, topK)
	report.Divergence = divergence(req.CaseOutcome.Disposition, report.Supporting, report.Contrary)

	return report
}

func sortDescending(pool []ScoredPrecedent) {
	sort.Slice(pool, func(i, j int) bool { return pool[i].Similarity > pool[j].Similarity })
}

func distinguishingFactors(registry *domainregistry.Registry, caseFields map[string]interface{}, supporting, contrary []ScoredPrecedent, topK int) map[string][]DistinguishingFactor {
	out := make(map[string][]DistinguishingFactor)

	collect := func(pool []ScoredPrecedent) {
		for i, sp := range pool {
			if i >= topK {
				break
			}
			var factors []DistinguishingFactor
			for name := range registry.Fields {
				caseVal, caseOk := caseFields[name]
				precVal, precOk := sp.Candidate.Fields[name]
				if !caseOk || !precOk {
					continue
				}
				if caseVal != precVal {
					factors = append(factors, DistinguishingFactor{Field: name, CaseValue: caseVal, PrecedentValue: precVal})
				}
			}
			sort.Slice(factors, func(i, j int) bool { return factors[i].Field < factors[j].Field })
			out[sp.Candidate.CellID] = factors
		}
	}
	collect(supporting)
	collect(contrary)
	return out
}

// divergence reports whether the proposed disposition disagrees with
// the decisive pool's majority, returning nil when they agree or when
// the pool has no decisive members.
func divergence(proposed judgment.Disposition, supporting, contrary []ScoredPrecedent) *Divergence {
	supportingCount := len(supporting)
	contraryCount := len(contrary)
	if supportingCount == 0 && contraryCount == 0 {
		return nil
	}

	majority := judgment.DispositionAllow
	if contraryCount > supportingCount {
		// contrary precedents disagree with the proposed disposition by
		// definition (ALLOW<->BLOCK), so the pool majority is whichever
		// side has more votes when contrary precedents outnumber supporting.
		majority = oppositeOf(proposed)
	} else {
		majority = proposed
	}

	if majority == proposed {
		return nil
	}
	return &Divergence{
		ProposedDisposition: proposed,
		PoolMajority:        majority,
		SupportingCount:     supportingCount,
		ContraryCount:       contraryCount,
	}
}

func oppositeOf(d judgment.Disposition) judgment.Disposition {
	switch d {
	case judgment.DispositionAllow:
		return judgment.DispositionBlock
	case judgment.DispositionBlock:
		return judgment.DispositionAllow
	default:
		return d
	}
}
