package chain_test

import (
	"testing"

	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/chain"
	"github.com/decisiongraph/core/pkg/genesis"
	"github.com/decisiongraph/core/pkg/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGenesis(t *testing.T, rootNamespace string) cell.Cell {
	t.Helper()
	g, err := genesis.Create(genesis.Options{
		GraphName:     "AcmeCorp",
		RootNamespace: rootNamespace,
		SystemTime:    "2026-01-02T00:00:00Z",
		HashScheme:    cell.HashSchemeCanonicalJCS,
		Bootstrap:     true,
	})
	require.NoError(t, err)
	return g
}

func factOn(t *testing.T, head cell.Cell, systemTime string) cell.Cell {
	t.Helper()
	h := cell.Header{
		Version:      "1.0",
		GraphID:      head.Header.GraphID,
		CellType:     cell.TypeFact,
		SystemTime:   systemTime,
		PrevCellHash: head.CellID,
		HashScheme:   cell.HashSchemeCanonicalJCS,
	}
	f := cell.Fact{
		Namespace:     "acme",
		Subject:       "employee:jane_doe",
		Predicate:     "has_salary",
		Object:        map[string]interface{}{"amount": "150000"},
		Confidence:    0.9,
		SourceQuality: cell.SourceSelfReported,
		ValidFrom:     systemTime,
	}
	c, err := cell.Seal(h, f, cell.LogicAnchor{}, nil, cell.Proof{})
	require.NoError(t, err)
	return c
}

func TestChain_AppendAndGet(t *testing.T) {
	g := mustGenesis(t, "acme")
	c, err := chain.NewWithGenesis(g, signing.NewKeyRing(), false, nil)
	require.NoError(t, err)

	f := factOn(t, g, "2026-01-02T00:00:01Z")
	require.NoError(t, c.Append(f))

	assert.Equal(t, 2, c.Len())
	got, ok := c.Get(f.CellID)
	require.True(t, ok)
	assert.Equal(t, f.CellID, got.CellID)
	assert.Equal(t, f.CellID, c.Head().CellID)
}

func TestChain_RejectsCrossGraphCell(t *testing.T) {
	gA := mustGenesis(t, "acme")
	gB := mustGenesis(t, "other")

	chainA, err := chain.NewWithGenesis(gA, signing.NewKeyRing(), false, nil)
	require.NoError(t, err)

	crossGraphCell := factOn(t, gB, "2026-01-02T00:00:01Z")
	err = chainA.Append(crossGraphCell)
	require.Error(t, err)
	assert.Equal(t, 1, chainA.Len())
}

func TestChain_IndexFanOutObservesCommittedCell(t *testing.T) {
	g := mustGenesis(t, "acme")
	c, err := chain.NewWithGenesis(g, signing.NewKeyRing(), false, nil)
	require.NoError(t, err)

	var observed []string
	c.OnAppend = append(c.OnAppend, func(cl cell.Cell) {
		observed = append(observed, cl.CellID)
	})

	f := factOn(t, g, "2026-01-02T00:00:01Z")
	require.NoError(t, c.Append(f))

	require.Len(t, observed, 1)
	assert.Equal(t, f.CellID, observed[0])
}

func TestChain_IterRange(t *testing.T) {
	g := mustGenesis(t, "acme")
	c, err := chain.NewWithGenesis(g, signing.NewKeyRing(), false, nil)
	require.NoError(t, err)

	f1 := factOn(t, g, "2026-01-02T00:00:01Z")
	require.NoError(t, c.Append(f1))
	f2 := factOn(t, f1, "2026-01-02T00:00:02Z")
	require.NoError(t, c.Append(f2))

	cells, err := c.IterRange(g.CellID, "")
	require.NoError(t, err)
	assert.Len(t, cells, 3)

	cells, err = c.IterRange(g.CellID, f1.CellID)
	require.NoError(t, err)
	assert.Len(t, cells, 2)
}

func TestChain_Validate(t *testing.T) {
	g := mustGenesis(t, "acme")
	c, err := chain.NewWithGenesis(g, signing.NewKeyRing(), false, nil)
	require.NoError(t, err)

	f := factOn(t, g, "2026-01-02T00:00:01Z")
	require.NoError(t, c.Append(f))

	assert.NoError(t, c.Validate())
}
