package scholar_test

import (
	"context"
	"testing"
	"time"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/scholar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factCell(t *testing.T, id, ns, subject, predicate string, object interface{}, confidence float64, quality cell.SourceQuality, systemTime, validFrom string, validTo *string, ruleID string) cell.Cell {
	t.Helper()
	return cell.Cell{
		CellID: id,
		Header: cell.Header{GraphID: "g1", CellType: cell.TypeFact, SystemTime: systemTime},
		Fact: cell.Fact{
			Namespace:     ns,
			Subject:       subject,
			Predicate:     predicate,
			Object:        object,
			Confidence:    confidence,
			SourceQuality: quality,
			ValidFrom:     validFrom,
			ValidTo:       validTo,
		},
		LogicAnchor: cell.LogicAnchor{RuleID: ruleID},
	}
}

func TestQueryFacts_BitemporalFilterExcludesFutureKnowledge(t *testing.T) {
	idx := scholar.NewIndex()
	idx.Index(factCell(t, "c1", "acme", "entity-1", "risk_tier", "high", 0.9, cell.SourceVerified,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, ""))
	idx.Index(factCell(t, "c2", "acme", "entity-1", "risk_tier", "low", 0.9, cell.SourceVerified,
		"2026-06-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, ""))

	result, err := scholar.QueryFacts(context.Background(), idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "acme",
		AtValidTime:        "2026-03-01T00:00:00Z",
		AsOfSystemTime:     "2026-02-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModeAll,
	})
	require.NoError(t, err)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "c1", result.Facts[0].CellID)
}

func TestQueryFacts_ValidTimeWindowExcludesExpiredFacts(t *testing.T) {
	idx := scholar.NewIndex()
	expiry := "2026-01-01T00:00:00Z"
	idx.Index(factCell(t, "c1", "acme", "entity-1", "flag", "active", 0.9, cell.SourceVerified,
		"2025-01-01T00:00:00Z", "2024-01-01T00:00:00Z", &expiry, ""))

	result, err := scholar.QueryFacts(context.Background(), idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "acme",
		AtValidTime:        "2026-06-01T00:00:00Z",
		AsOfSystemTime:     "2026-06-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModeAll,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Facts)
}

func TestQueryFacts_ConflictResolutionPrefersHigherSourceQuality(t *testing.T) {
	idx := scholar.NewIndex()
	idx.Index(factCell(t, "c1", "acme", "entity-1", "risk_tier", "low", 0.9, cell.SourceInferred,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, ""))
	idx.Index(factCell(t, "c2", "acme", "entity-1", "risk_tier", "high", 0.5, cell.SourceVerified,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, ""))

	result, err := scholar.QueryFacts(context.Background(), idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "acme",
		AtValidTime:        "2026-06-01T00:00:00Z",
		AsOfSystemTime:     "2026-06-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModeAll,
	})
	require.NoError(t, err)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "c2", result.Facts[0].CellID)
}

func TestQueryFacts_CrossNamespaceRequiresEffectiveBridge(t *testing.T) {
	idx := scholar.NewIndex()
	idx.Index(factCell(t, "c1", "partner", "entity-1", "risk_tier", "high", 0.9, cell.SourceVerified,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, ""))

	result, err := scholar.QueryFacts(context.Background(), idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "partner",
		AtValidTime:        "2026-06-01T00:00:00Z",
		AsOfSystemTime:     "2026-06-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModeAll,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Facts)
	assert.NotEmpty(t, result.ResolutionEvents)

	bridgeCell := cell.Cell{
		CellID: "bridge-1",
		Header: cell.Header{GraphID: "g1", CellType: cell.TypeBridgeRule, SystemTime: "2026-01-01T00:00:00Z"},
		Fact: cell.Fact{
			Object: map[string]interface{}{
				"source_namespace": "acme",
				"target_namespace": "partner",
			},
		},
		Evidence: []cell.EvidenceEntry{
			{Type: "bridge_approval", Source: "acme"},
			{Type: "bridge_approval", Source: "partner"},
		},
	}
	idx.Index(bridgeCell)

	result, err = scholar.QueryFacts(context.Background(), idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "partner",
		AtValidTime:        "2026-06-01T00:00:00Z",
		AsOfSystemTime:     "2026-06-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModeAll,
	})
	require.NoError(t, err)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, []string{"bridge-1"}, result.BridgesUsed)
}

func TestQueryFacts_PromotedOnlyExcludesUnpromotedRules(t *testing.T) {
	idx := scholar.NewIndex()
	idx.Index(factCell(t, "c1", "acme", "entity-1", "risk_tier", "high", 0.9, cell.SourceVerified,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, "rule-a"))
	idx.Index(factCell(t, "c2", "acme", "entity-2", "risk_tier", "low", 0.9, cell.SourceVerified,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, "rule-b"))

	policyHead := cell.Cell{
		CellID: "ph-1",
		Header: cell.Header{GraphID: "g1", CellType: cell.TypePolicyHead, SystemTime: "2026-01-02T00:00:00Z"},
		Fact: cell.Fact{
			Object: map[string]interface{}{
				"namespace":         "acme",
				"promoted_rule_ids": []interface{}{"rule-a"},
				"prev_policy_head":  "",
			},
		},
	}
	idx.Index(policyHead)

	result, err := scholar.QueryFacts(context.Background(), idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "acme",
		AtValidTime:        "2026-06-01T00:00:00Z",
		AsOfSystemTime:     "2026-06-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModePromotedOnly,
	})
	require.NoError(t, err)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "c1", result.Facts[0].CellID)
	assert.Equal(t, "ph-1", result.ProofBundle.ActivePolicyHeadID)
}

func TestQueryFacts_ExpiredDeadlineReturnsNoResult(t *testing.T) {
	idx := scholar.NewIndex()
	idx.Index(factCell(t, "c1", "acme", "entity-1", "risk_tier", "high", 0.9, cell.SourceVerified,
		"2026-01-01T00:00:00Z", "2025-01-01T00:00:00Z", nil, ""))

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	result, err := scholar.QueryFacts(ctx, idx, scholar.Request{
		RequesterNamespace: "acme",
		TargetNamespace:    "acme",
		AtValidTime:        "2026-06-01T00:00:00Z",
		AsOfSystemTime:     "2026-06-01T00:00:00Z",
		PolicyMode:         scholar.PolicyModeAll,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDeadlineExceeded, apperr.CodeOf(err))
	assert.Empty(t, result.Facts)
}
