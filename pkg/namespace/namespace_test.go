package namespace_test

import (
	"testing"

	"github.com/decisiongraph/core/pkg/namespace"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, namespace.Validate("acme"))
	assert.NoError(t, namespace.Validate("acme.hr.payroll"))
	assert.Error(t, namespace.Validate("Acme"))
	assert.Error(t, namespace.Validate("acme."))
	assert.Error(t, namespace.Validate(".acme"))
	assert.Error(t, namespace.Validate("acme..hr"))
}

func TestValidateRoot(t *testing.T) {
	assert.NoError(t, namespace.ValidateRoot("acme"))
	assert.Error(t, namespace.ValidateRoot("acme.hr"))
}

func TestIsAncestor(t *testing.T) {
	assert.True(t, namespace.IsAncestor("acme", "acme"))
	assert.True(t, namespace.IsAncestor("acme", "acme.hr"))
	assert.True(t, namespace.IsAncestor("acme.hr", "acme.hr.payroll"))
	assert.False(t, namespace.IsAncestor("acme.hr", "acme"))
	assert.False(t, namespace.IsAncestor("acme.hrx", "acme.hr.payroll"))
}

func TestCanRead_RespectsBitemporalBounds(t *testing.T) {
	validTo := "2026-06-01T00:00:00Z"
	rules := []namespace.AccessRule{
		{
			Role:       "auditor",
			Namespace:  "acme.hr",
			ValidFrom:  "2026-01-01T00:00:00Z",
			ValidTo:    &validTo,
			SystemTime: "2026-01-01T00:00:00Z",
		},
	}

	assert.True(t, namespace.CanRead(rules, "auditor", "acme.hr.payroll", "2026-03-01T00:00:00Z", "2026-03-01T00:00:00Z"))
	assert.False(t, namespace.CanRead(rules, "auditor", "acme.hr", "2026-07-01T00:00:00Z", "2026-07-01T00:00:00Z"))
	assert.False(t, namespace.CanRead(rules, "auditor", "acme.hr", "2026-03-01T00:00:00Z", "2025-12-31T00:00:00Z"))
	assert.False(t, namespace.CanRead(rules, "someone_else", "acme.hr", "2026-03-01T00:00:00Z", "2026-03-01T00:00:00Z"))
}

func TestBridgeRule_Effective(t *testing.T) {
	b := namespace.BridgeRule{
		SourceNamespace: "acme.hr",
		TargetNamespace: "acme.legal",
		SourceSigned:    true,
		TargetSigned:    true,
		SystemTime:      "2026-01-01T00:00:00Z",
	}

	assert.True(t, b.Effective("acme.hr", "acme.legal", "2026-02-01T00:00:00Z"))
	assert.False(t, b.Effective("acme.hr", "acme.legal", "2025-12-01T00:00:00Z"))
	assert.False(t, b.Effective("acme.legal", "acme.hr", "2026-02-01T00:00:00Z"))

	b.TargetSigned = false
	assert.False(t, b.Effective("acme.hr", "acme.legal", "2026-02-01T00:00:00Z"))
}

func TestFindEffectiveBridge(t *testing.T) {
	bridges := []namespace.BridgeRule{
		{SourceNamespace: "acme.hr", TargetNamespace: "acme.legal", SourceSigned: true, TargetSigned: false, SystemTime: "2026-01-01T00:00:00Z"},
		{SourceNamespace: "acme.hr", TargetNamespace: "acme.legal", SourceSigned: true, TargetSigned: true, SystemTime: "2026-01-01T00:00:00Z"},
	}

	got, ok := namespace.FindEffectiveBridge(bridges, "acme.hr", "acme.legal", "2026-02-01T00:00:00Z")
	assert.True(t, ok)
	assert.True(t, got.TargetSigned)

	_, ok = namespace.FindEffectiveBridge(bridges, "acme.legal", "acme.hr", "2026-02-01T00:00:00Z")
	assert.False(t, ok)
}
