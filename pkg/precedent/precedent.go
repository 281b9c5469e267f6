// Package precedent indexes sealed Judgment cells so the comparability,
// similarity, and confidence layers can query them by fingerprint or
// exclusion code without re-scanning the chain. The index is rebuilt
// from the chain on startup and incrementally maintained by subscribing
// to chain.Chain's OnAppend hook.
package precedent

import (
	"sort"
	"sync"

	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/judgment"
	"github.com/decisiongraph/core/pkg/namespace"
)

// Candidate is a Judgment cell decoded into the shape the scoring
// layers operate on.
type Candidate struct {
	CellID          string
	Namespace       string
	SystemTime      string
	PrecedentID     string
	FingerprintHash string
	SchemaID        string
	Fields          map[string]interface{}
	Outcome         judgment.Outcome
	DecisionDrivers []string
	DriverTypology  string
	ExclusionCodes  []string
}

// FromCell decodes a Judgment cell into a Candidate. It returns false
// if c is not a Judgment cell or its payload cannot be decoded.
func FromCell(c cell.Cell) (Candidate, bool) {
	if c.Header.CellType != cell.TypeJudgment {
		return Candidate{}, false
	}
	obj, ok := c.Fact.Object.(map[string]interface{})
	if !ok {
		return Candidate{}, false
	}
	outcome, ok := judgment.DecodeOutcome(c)
	if !ok {
		return Candidate{}, false
	}

	fields, _ := obj["anchor_facts"].(map[string]interface{})
	precedentID, _ := obj["precedent_id"].(string)
	fingerprintHash, _ := obj["fingerprint_hash"].(string)
	schemaID, _ := obj["schema_id"].(string)
	driverTypology, _ := obj["driver_typology"].(string)

	var drivers []string
	if raw, ok := obj["decision_drivers"].([]interface{}); ok {
		for _, d := range raw {
			if s, ok := d.(string); ok {
				drivers = append(drivers, s)
			}
		}
	}
	var exclusionCodes []string
	if raw, ok := fields["exclusion_codes"].([]interface{}); ok {
		for _, d := range raw {
			if s, ok := d.(string); ok {
				exclusionCodes = append(exclusionCodes, s)
			}
		}
	}

	return Candidate{
		CellID:          c.CellID,
		Namespace:       c.Fact.Namespace,
		SystemTime:      c.Header.SystemTime,
		PrecedentID:     precedentID,
		FingerprintHash: fingerprintHash,
		SchemaID:        schemaID,
		Fields:          fields,
		Outcome:         outcome,
		DecisionDrivers: drivers,
		DriverTypology:  driverTypology,
		ExclusionCodes:  exclusionCodes,
	}, true
}

// Statistics summarizes the candidates sharing a fingerprint.
type Statistics struct {
	TotalCount    int
	OutcomeCounts map[judgment.Disposition]int
	AppealStats   map[string]int
}

// Registry is the process-local, incrementally-maintained index over
// Judgment cells.
type Registry struct {
	mu         sync.RWMutex
	byCellID   map[string]Candidate
	order      []string // cell ids in the order they were indexed
}

// NewRegistry creates an empty index.
func NewRegistry() *Registry {
	return &Registry{byCellID: make(map[string]Candidate)}
}

// Index adds c to the registry if it decodes as a Judgment. It is
// idempotent: re-indexing the same cell id is a no-op. Wire this as a
// chain.Chain.OnAppend hook (or call it once per cell during a
// startup rebuild walk) to keep the index current.
func (r *Registry) Index(c cell.Cell) {
	cand, ok := FromCell(c)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCellID[cand.CellID]; exists {
		return
	}
	r.byCellID[cand.CellID] = cand
	r.order = append(r.order, cand.CellID)
}

// FindByFingerprint returns every indexed candidate sharing hash whose
// namespace is namespacePrefix or a descendant of it, with SystemTime
// <= asOfSystemTime when asOfSystemTime is non-empty.
func (r *Registry) FindByFingerprint(hash, namespacePrefix, asOfSystemTime string) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Candidate
	for _, id := range r.order {
		c := r.byCellID[id]
		if c.FingerprintHash != hash {
			continue
		}
		if !namespace.IsAncestor(namespacePrefix, c.Namespace) {
			continue
		}
		if asOfSystemTime != "" && c.SystemTime > asOfSystemTime {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ExclusionMatch pairs a candidate with how many exclusion codes it
// shares with the query.
type ExclusionMatch struct {
	Candidate    Candidate
	OverlapCount int
}

// FindByExclusionCodes returns candidates under namespacePrefix that
// share at least minOverlap exclusion codes with codes, optionally
// restricted to a single disposition outcome.
func (r *Registry) FindByExclusionCodes(codes []string, namespacePrefix string, outcome *judgment.Disposition, minOverlap int) []ExclusionMatch {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ExclusionMatch
	for _, id := range r.order {
		c := r.byCellID[id]
		if !namespace.IsAncestor(namespacePrefix, c.Namespace) {
			continue
		}
		if outcome != nil && c.Outcome.Disposition != *outcome {
			continue
		}
		overlap := 0
		for _, code := range c.ExclusionCodes {
			if want[code] {
				overlap++
			}
		}
		if overlap >= minOverlap {
			out = append(out, ExclusionMatch{Candidate: c, OverlapCount: overlap})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverlapCount > out[j].OverlapCount })
	return out
}

// GetStatistics summarizes every candidate sharing fingerprintHash
// under namespacePrefix.
func (r *Registry) GetStatistics(fingerprintHash, namespacePrefix string) Statistics {
	stats := Statistics{OutcomeCounts: make(map[judgment.Disposition]int), AppealStats: make(map[string]int)}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		c := r.byCellID[id]
		if c.FingerprintHash != fingerprintHash {
			continue
		}
		if !namespace.IsAncestor(namespacePrefix, c.Namespace) {
			continue
		}
		stats.TotalCount++
		stats.OutcomeCounts[c.Outcome.Disposition]++
	}
	return stats
}
