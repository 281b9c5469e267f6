package comparability_test

import (
	"testing"

	"github.com/decisiongraph/core/pkg/comparability"
	"github.com/decisiongraph/core/pkg/domainregistry"
	"github.com/decisiongraph/core/pkg/precedent"
	"github.com/stretchr/testify/assert"
)

func registryWithEquivalenceGate() *domainregistry.Registry {
	return &domainregistry.Registry{
		DomainID: "test",
		Fields: map[string]domainregistry.FieldDef{
			"industry": {
				Name:       "industry",
				Type:       domainregistry.FieldCategorical,
				Comparison: domainregistry.ComparisonEquivalenceClass,
				EquivalenceClasses: map[string]string{
					"retail_banking": "financial_services",
					"insurance":      "financial_services",
					"manufacturing":  "industrial",
				},
			},
		},
		ComparabilityGates: []domainregistry.Gate{
			{Field: "industry"},
			{Field: "disposition_basis"},
		},
	}
}

func TestPasses_SameEquivalenceClassPasses(t *testing.T) {
	r := registryWithEquivalenceGate()
	caseFields := map[string]interface{}{"industry": "retail_banking", "disposition_basis": "DISCRETIONARY"}
	cand := precedent.Candidate{Fields: map[string]interface{}{"industry": "insurance", "disposition_basis": "DISCRETIONARY"}}

	ok, warnings := comparability.Passes(r, caseFields, cand)
	assert.True(t, ok)
	assert.Empty(t, warnings)
}

func TestPasses_DifferentEquivalenceClassFails(t *testing.T) {
	r := registryWithEquivalenceGate()
	caseFields := map[string]interface{}{"industry": "retail_banking", "disposition_basis": "DISCRETIONARY"}
	cand := precedent.Candidate{Fields: map[string]interface{}{"industry": "manufacturing", "disposition_basis": "DISCRETIONARY"}}

	ok, _ := comparability.Passes(r, caseFields, cand)
	assert.False(t, ok)
}

func TestPasses_MandatoryDiscretionaryAlwaysFails(t *testing.T) {
	r := registryWithEquivalenceGate()
	caseFields := map[string]interface{}{"industry": "retail_banking", "disposition_basis": "MANDATORY"}
	cand := precedent.Candidate{Fields: map[string]interface{}{"industry": "retail_banking", "disposition_basis": "DISCRETIONARY"}}

	ok, _ := comparability.Passes(r, caseFields, cand)
	assert.False(t, ok)
}

func TestPasses_MissingCaseFieldWarnsButPasses(t *testing.T) {
	r := registryWithEquivalenceGate()
	caseFields := map[string]interface{}{"disposition_basis": "DISCRETIONARY"}
	cand := precedent.Candidate{Fields: map[string]interface{}{"industry": "manufacturing", "disposition_basis": "DISCRETIONARY"}}

	ok, warnings := comparability.Passes(r, caseFields, cand)
	assert.True(t, ok)
	assert.NotEmpty(t, warnings)
}

func TestPasses_UnclassifiableValuePasses(t *testing.T) {
	r := registryWithEquivalenceGate()
	caseFields := map[string]interface{}{"industry": "unknown_industry", "disposition_basis": "DISCRETIONARY"}
	cand := precedent.Candidate{Fields: map[string]interface{}{"industry": "manufacturing", "disposition_basis": "DISCRETIONARY"}}

	ok, warnings := comparability.Passes(r, caseFields, cand)
	assert.True(t, ok)
	assert.NotEmpty(t, warnings)
}

func TestFilter_KeepsOnlyPassingCandidates(t *testing.T) {
	r := registryWithEquivalenceGate()
	caseFields := map[string]interface{}{"industry": "retail_banking", "disposition_basis": "DISCRETIONARY"}
	candidates := []precedent.Candidate{
		{CellID: "a", Fields: map[string]interface{}{"industry": "insurance", "disposition_basis": "DISCRETIONARY"}},
		{CellID: "b", Fields: map[string]interface{}{"industry": "manufacturing", "disposition_basis": "DISCRETIONARY"}},
	}

	passed, _ := comparability.Filter(r, caseFields, candidates)
	assert.Len(t, passed, 1)
	assert.Equal(t, "a", passed[0].CellID)
}
