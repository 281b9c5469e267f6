// Package chain implements the append-only, hash-linked sequence of
// cells sharing one graph_id and hash_scheme. Chain exclusively owns
// its cells' lifetimes; other packages hold cell-id references and
// look up through the Chain rather than caching pointers.
package chain

import (
	"log/slog"
	"sync"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/commitgate"
	"github.com/decisiongraph/core/pkg/genesis"
	"github.com/decisiongraph/core/pkg/signing"
)

// Chain is the authoritative, ordered sequence of cells for one graph.
// All mutation goes through a single exclusive lock; readers take a
// shared lock over an immutable snapshot of the tail index.
type Chain struct {
	mu         sync.RWMutex
	graphID    string
	hashScheme cell.HashScheme
	cells      []cell.Cell
	byID       map[string]int // cell_id -> index in cells

	resolver signing.KeyResolver
	logger   *slog.Logger

	// OnAppend is invoked, under the writer lock, after a cell is
	// installed at the tail and before append() returns — this is the
	// index fan-out hook Scholar and PrecedentRegistry subscribe
	// through so a committed cell is observable to readers before the
	// caller's append() call returns.
	OnAppend []func(cell.Cell)
}

// NewWithGenesis validates g per the 22 genesis checks and installs it
// at position 0.
func NewWithGenesis(g cell.Cell, resolver signing.KeyResolver, strictSignature bool, logger *slog.Logger) (*Chain, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ok, failures := genesis.Verify(g, resolver, strictSignature); !ok {
		return nil, apperr.Wrap(apperr.CodeGenesisViolation, "genesis validation failed", failuresErr(failures))
	}

	c := &Chain{
		graphID:    g.Header.GraphID,
		hashScheme: g.Header.HashScheme,
		cells:      []cell.Cell{g},
		byID:       map[string]int{g.CellID: 0},
		resolver:   resolver,
		logger:     logger,
	}
	logger.Debug("chain: genesis installed", "graph_id", c.graphID, "cell_id", g.CellID)
	return c, nil
}

type failuresErr []genesis.Failure

func (f failuresErr) Error() string {
	if len(f) == 0 {
		return "no failures"
	}
	return f[0].Check + ": " + f[0].Message
}

// GraphID returns the chain's bound graph_id.
func (c *Chain) GraphID() string { return c.graphID }

// HashScheme returns the chain's bound hash scheme.
func (c *Chain) HashScheme() cell.HashScheme { return c.hashScheme }

// Append validates next via the Commit Gate and, on success, installs
// it at the tail, fanning out to every registered index before
// returning.
func (c *Chain) Append(next cell.Cell) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.cells[len(c.cells)-1]
	view := commitgate.ChainView{
		GraphID:    c.graphID,
		HashScheme: c.hashScheme,
		Head:       head,
		Empty:      false,
	}

	if err := commitgate.Validate(view, next, c.resolver); err != nil {
		c.logger.Warn("chain: append rejected", "cell_id", next.CellID, "error", err)
		return err
	}

	idx := len(c.cells)
	c.cells = append(c.cells, next)
	c.byID[next.CellID] = idx

	for _, hook := range c.OnAppend {
		hook(next)
	}

	c.logger.Debug("chain: append committed", "cell_id", next.CellID, "index", idx)
	return nil
}

// Get returns the cell with the given id, if present.
func (c *Chain) Get(cellID string) (cell.Cell, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.byID[cellID]
	if !ok {
		return cell.Cell{}, false
	}
	return c.cells[idx], true
}

// Head returns the tail cell.
func (c *Chain) Head() cell.Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cells[len(c.cells)-1]
}

// Len returns the number of cells currently committed.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cells)
}

// IterRange returns a finite, forward-only slice of cells from fromID
// through toID inclusive. Restartable: callers can call it again with
// the same arguments and get the same result as long as the chain
// hasn't grown past toID. An empty toID means "through the current
// head".
func (c *Chain) IterRange(fromID, toID string) ([]cell.Cell, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start, ok := c.byID[fromID]
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidField, "fromID not found in chain")
	}
	end := len(c.cells) - 1
	if toID != "" {
		idx, ok := c.byID[toID]
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidField, "toID not found in chain")
		}
		end = idx
	}
	if end < start {
		return nil, apperr.New(apperr.CodeInvalidField, "toID precedes fromID")
	}

	out := make([]cell.Cell, end-start+1)
	copy(out, c.cells[start:end+1])
	return out, nil
}

// Validate re-verifies every cell's integrity and the prev_cell_hash
// linkage across the whole chain, from genesis forward.
func (c *Chain) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, cl := range c.cells {
		if !cell.VerifyIntegrity(cl) {
			return apperr.New(apperr.CodeIntegrityViolation, cl.CellID)
		}
		if i == 0 {
			if cl.Header.PrevCellHash != cell.NullHash {
				return apperr.New(apperr.CodeGenesisViolation, "index 0 must carry NULL_HASH")
			}
			continue
		}
		if cl.Header.PrevCellHash != c.cells[i-1].CellID {
			return apperr.New(apperr.CodeChainBreak, cl.CellID)
		}
		if cl.Header.SystemTime < c.cells[i-1].Header.SystemTime {
			return apperr.New(apperr.CodeTemporalViolation, cl.CellID)
		}
	}
	return nil
}
