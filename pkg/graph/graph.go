// Package graph wires a Chain to the read-side indexes that subscribe
// through its OnAppend hook: Scholar's bitemporal fact index and the
// precedent engine's Judgment registry. Callers that only need the
// substrate should use pkg/chain directly; Graph is for callers that
// want committed cells to become queryable without re-deriving the
// wiring themselves.
package graph

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/chain"
	"github.com/decisiongraph/core/pkg/precedent"
	"github.com/decisiongraph/core/pkg/reasoner"
	"github.com/decisiongraph/core/pkg/scholar"
	"github.com/decisiongraph/core/pkg/signing"
	"github.com/decisiongraph/core/pkg/wal"
)

// Graph bundles a Chain with its live Scholar index and precedent
// registry. All three observe the same committed sequence of cells.
type Graph struct {
	Chain      *chain.Chain
	Facts      *scholar.Index
	Precedents *precedent.Registry
}

// New installs genesis and wires Facts and Precedents to observe every
// cell appended afterward. It does not replay any prior history — callers
// restoring a graph from a WAL or snapshot re-append that history; the
// indexes observe the Chain's OnAppend hook, so appends through either
// the Graph or its Chain keep them current.
func New(genesisCell cell.Cell, resolver signing.KeyResolver, strictSignature bool, logger *slog.Logger) (*Graph, error) {
	c, err := chain.NewWithGenesis(genesisCell, resolver, strictSignature, logger)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		Chain:      c,
		Facts:      scholar.NewIndex(),
		Precedents: precedent.NewRegistry(),
	}
	c.OnAppend = append(c.OnAppend, g.Facts.Index, g.Precedents.Index)
	return g, nil
}

// Append validates and commits next, fanning out to Facts and Precedents
// before returning.
func (g *Graph) Append(next cell.Cell) error {
	return g.Chain.Append(next)
}

// QueryFacts runs a bitemporal, namespace-authorized fact query over the
// committed chain's current state.
func (g *Graph) QueryFacts(ctx context.Context, req scholar.Request) (scholar.Result, error) {
	return scholar.QueryFacts(ctx, g.Facts, req)
}

// Score scores a proposed case's facts against the graph's indexed
// Judgment precedents for req.Registry.DomainID, returning the governed
// PrecedentReport. It is a thin wrapper over pkg/reasoner.Score that
// binds the graph's own precedent registry.
func (g *Graph) Score(req reasoner.Request) reasoner.Report {
	req.Precedents = g.Precedents
	return reasoner.Score(req)
}

// Validate re-verifies the whole chain's integrity and linkage, a
// convenience pass-through for callers holding only a Graph.
func (g *Graph) Validate() error {
	if err := g.Chain.Validate(); err != nil {
		return apperr.Wrap(apperr.CodeIntegrityViolation, "graph: chain validation failed", err)
	}
	return nil
}

// AppendDurable writes next's JSON encoding to w before committing it to
// the chain. A crash between the two leaves a durable record that a
// future Restore will replay and re-validate through the commit gate —
// it is never silently lost, though a cell that never actually
// committed will simply fail that re-validation rather than reappear.
func (g *Graph) AppendDurable(next cell.Cell, w *wal.WAL) error {
	data, err := json.Marshal(next)
	if err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "graph: encoding cell for WAL", err)
	}
	if err := w.Append(data); err != nil {
		return err
	}
	return g.Append(next)
}

// Restore rebuilds a Graph from a WAL's replayed records (as returned by
// wal.Open): the first record must be the sealed Genesis cell, every
// subsequent record a cell committed before the process restarted. Each
// is re-appended through the commit gate in its original order, so Facts
// and Precedents end up exactly as they were — without writing back to
// w, since these records are already durable.
func Restore(records [][]byte, resolver signing.KeyResolver, strictSignature bool, logger *slog.Logger) (*Graph, error) {
	if len(records) == 0 {
		return nil, apperr.New(apperr.CodeIOFailure, "graph: cannot restore from an empty WAL")
	}

	var genesisCell cell.Cell
	if err := json.Unmarshal(records[0], &genesisCell); err != nil {
		return nil, apperr.Wrap(apperr.CodeIOFailure, "graph: decoding genesis record", err)
	}
	g, err := New(genesisCell, resolver, strictSignature, logger)
	if err != nil {
		return nil, err
	}

	for _, rec := range records[1:] {
		var c cell.Cell
		if err := json.Unmarshal(rec, &c); err != nil {
			return nil, apperr.Wrap(apperr.CodeIOFailure, "graph: decoding WAL record", err)
		}
		if err := g.Chain.Append(c); err != nil {
			return nil, apperr.Wrap(apperr.CodeIOFailure, "graph: replaying WAL record", err)
		}
	}
	return g, nil
}
