package reasoner_test

import (
	"testing"

	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/confidence"
	"github.com/decisiongraph/core/pkg/domainregistry"
	"github.com/decisiongraph/core/pkg/judgment"
	"github.com/decisiongraph/core/pkg/precedent"
	"github.com/decisiongraph/core/pkg/reasoner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *domainregistry.Registry {
	return &domainregistry.Registry{
		DomainID:        "test",
		PoolMinimum:     5,
		SimilarityFloor: 0.4,
		Fields: map[string]domainregistry.FieldDef{
			"velocity": {
				Name:       "velocity",
				Type:       domainregistry.FieldNumeric,
				Comparison: domainregistry.ComparisonDistanceDecay,
				Tier:       domainregistry.TierBehavioral,
				Weight:     1,
				DecayRate:  10,
			},
		},
	}
}

func judgmentCandidate(t *testing.T, cellID string, velocity float64, disposition judgment.Disposition, drivers []string) precedent.Candidate {
	t.Helper()
	return precedent.Candidate{
		CellID:          cellID,
		Namespace:       "acme",
		FingerprintHash: "fp1",
		Fields:          map[string]interface{}{"velocity": velocity},
		DecisionDrivers: drivers,
		Outcome:         judgment.Outcome{Disposition: disposition, DispositionBasis: judgment.BasisDiscretionary},
	}
}

func indexCandidates(t *testing.T, reg *precedent.Registry, cands ...precedent.Candidate) {
	t.Helper()
	for _, c := range cands {
		obj := map[string]interface{}{
			"precedent_id":     c.PrecedentID,
			"fingerprint_hash": c.FingerprintHash,
			"anchor_facts":     c.Fields,
			"disposition":      string(c.Outcome.Disposition),
			"disposition_basis": string(c.Outcome.DispositionBasis),
			"reporting":        string(judgment.ReportingNone),
			"decision_drivers": toInterfaceSlice(c.DecisionDrivers),
		}
		jc := cell.Cell{
			CellID: c.CellID,
			Header: cell.Header{CellType: cell.TypeJudgment},
			Fact:   cell.Fact{Namespace: c.Namespace, Object: obj},
		}
		reg.Index(jc)
	}
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func TestScore_ClassifiesIntoPools(t *testing.T) {
	reg := testRegistry()
	precedents := precedent.NewRegistry()
	indexCandidates(t, precedents,
		judgmentCandidate(t, "c-support", 5, judgment.DispositionBlock, nil),
		judgmentCandidate(t, "c-contrary", 5, judgment.DispositionAllow, nil),
	)

	report := reasoner.Score(reasoner.Request{
		Registry:        reg,
		Precedents:      precedents,
		CaseFields:      map[string]interface{}{"velocity": 5.0},
		CaseOutcome:     judgment.Outcome{Disposition: judgment.DispositionBlock, DispositionBasis: judgment.BasisDiscretionary},
		NamespacePrefix: "acme",
		AsOfSystemTime:  "",
		FingerprintHash: "fp1",
		Presence:        confidence.RequiredFieldPresence{RequiredCount: 1, PresentCount: 1},
	})

	require.Len(t, report.Supporting, 1)
	require.Len(t, report.Contrary, 1)
	assert.Equal(t, "c-support", report.Supporting[0].Candidate.CellID)
	assert.Equal(t, "c-contrary", report.Contrary[0].Candidate.CellID)
	// One supporting and one contrary precedent leave no majority for the
	// proposed disposition to disagree with.
	assert.Nil(t, report.Divergence)
}

func TestScore_BelowFloorExcludedFromPools(t *testing.T) {
	reg := testRegistry()
	precedents := precedent.NewRegistry()
	indexCandidates(t, precedents, judgmentCandidate(t, "c-far", 100, judgment.DispositionBlock, nil))

	report := reasoner.Score(reasoner.Request{
		Registry:        reg,
		Precedents:      precedents,
		CaseFields:      map[string]interface{}{"velocity": 5.0},
		CaseOutcome:     judgment.Outcome{Disposition: judgment.DispositionBlock, DispositionBasis: judgment.BasisDiscretionary},
		NamespacePrefix: "acme",
		FingerprintHash: "fp1",
		Presence:        confidence.RequiredFieldPresence{RequiredCount: 1, PresentCount: 1},
	})

	assert.Empty(t, report.Supporting)
	require.Len(t, report.BelowFloor, 1)
	assert.Equal(t, "c-far", report.BelowFloor[0].Candidate.CellID)
}

func TestScore_NonTransferableExcludedFromDecisivePools(t *testing.T) {
	reg := testRegistry()
	precedents := precedent.NewRegistry()
	indexCandidates(t, precedents, judgmentCandidate(t, "c-driver", 100, judgment.DispositionBlock, []string{"velocity"}))

	report := reasoner.Score(reasoner.Request{
		Registry:        reg,
		Precedents:      precedents,
		CaseFields:      map[string]interface{}{"velocity": 0.0},
		CaseOutcome:     judgment.Outcome{Disposition: judgment.DispositionBlock, DispositionBasis: judgment.BasisDiscretionary},
		NamespacePrefix: "acme",
		FingerprintHash: "fp1",
		Presence:        confidence.RequiredFieldPresence{RequiredCount: 1, PresentCount: 1},
	})

	assert.Empty(t, report.Supporting)
	assert.Empty(t, report.Contrary)
}

func TestScore_NoDivergenceWhenProposedMatchesMajority(t *testing.T) {
	reg := testRegistry()
	precedents := precedent.NewRegistry()
	indexCandidates(t, precedents, judgmentCandidate(t, "c1", 5, judgment.DispositionBlock, nil))

	report := reasoner.Score(reasoner.Request{
		Registry:        reg,
		Precedents:      precedents,
		CaseFields:      map[string]interface{}{"velocity": 5.0},
		CaseOutcome:     judgment.Outcome{Disposition: judgment.DispositionBlock, DispositionBasis: judgment.BasisDiscretionary},
		NamespacePrefix: "acme",
		FingerprintHash: "fp1",
		Presence:        confidence.RequiredFieldPresence{RequiredCount: 1, PresentCount: 1},
	})

	assert.Nil(t, report.Divergence)
}
