// Package scholar answers bitemporal, namespace-authorized queries
// over the facts a Chain has committed. It maintains its own indexes
// (facts, access rules, bridge rules, policy heads) fed by a Chain's
// OnAppend hook or a startup replay walk; it never reads the chain
// directly, so index maintenance and query resolution stay decoupled
// from chain internals.
package scholar

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/namespace"
	"golang.org/x/sync/errgroup"
)

// FactRecord is a Fact cell decoded into the shape queries filter and
// rank over.
type FactRecord struct {
	CellID        string
	Namespace     string
	Subject       string
	Predicate     string
	Object        interface{}
	Confidence    float64
	SourceQuality cell.SourceQuality
	ValidFrom     string
	ValidTo       *string
	SystemTime    string
	RuleID        string
}

// PolicyHeadRecord is a decoded PolicyHead cell.
type PolicyHeadRecord struct {
	CellID          string
	Namespace       string
	SystemTime      string
	PromotedRuleIDs []string
	PrevPolicyHead  string
}

// Index is the process-local state Scholar queries against.
type Index struct {
	mu          sync.RWMutex
	facts       []FactRecord
	accessRules []namespace.AccessRule
	bridgeRules []namespace.BridgeRule
	policyHeads map[string][]PolicyHeadRecord // namespace -> ordered by SystemTime ascending
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{policyHeads: make(map[string][]PolicyHeadRecord)}
}

// Index adds c's contribution to the index, dispatching on cell type.
// It is safe to call from a chain.Chain.OnAppend hook.
func (idx *Index) Index(c cell.Cell) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	switch c.Header.CellType {
	case cell.TypeFact:
		idx.facts = append(idx.facts, FactRecord{
			CellID:        c.CellID,
			Namespace:     c.Fact.Namespace,
			Subject:       c.Fact.Subject,
			Predicate:     c.Fact.Predicate,
			Object:        c.Fact.Object,
			Confidence:    c.Fact.Confidence,
			SourceQuality: c.Fact.SourceQuality,
			ValidFrom:     c.Fact.ValidFrom,
			ValidTo:       c.Fact.ValidTo,
			SystemTime:    c.Header.SystemTime,
			RuleID:        c.LogicAnchor.RuleID,
		})
	case cell.TypeAccessRule:
		if ar, ok := decodeAccessRule(c); ok {
			idx.accessRules = append(idx.accessRules, ar)
		}
	case cell.TypeBridgeRule:
		if br, ok := decodeBridgeRule(c); ok {
			idx.bridgeRules = append(idx.bridgeRules, br)
		}
	case cell.TypePolicyHead:
		if ph, ok := decodePolicyHead(c); ok {
			heads := idx.policyHeads[ph.Namespace]
			heads = append(heads, ph)
			sort.Slice(heads, func(i, j int) bool { return heads[i].SystemTime < heads[j].SystemTime })
			idx.policyHeads[ph.Namespace] = heads
		}
	}
}

func decodeAccessRule(c cell.Cell) (namespace.AccessRule, bool) {
	obj, ok := c.Fact.Object.(map[string]interface{})
	if !ok {
		return namespace.AccessRule{}, false
	}
	role, _ := obj["role"].(string)
	ns, _ := obj["namespace"].(string)
	var validTo *string
	if vt, ok := obj["valid_to"].(string); ok {
		validTo = &vt
	}
	return namespace.AccessRule{
		Role:       role,
		Namespace:  ns,
		ValidFrom:  c.Fact.ValidFrom,
		ValidTo:    validTo,
		SystemTime: c.Header.SystemTime,
	}, true
}

func decodeBridgeRule(c cell.Cell) (namespace.BridgeRule, bool) {
	obj, ok := c.Fact.Object.(map[string]interface{})
	if !ok {
		return namespace.BridgeRule{}, false
	}
	srcNS, _ := obj["source_namespace"].(string)
	tgtNS, _ := obj["target_namespace"].(string)

	var sourceSigned, targetSigned bool
	for _, e := range c.Evidence {
		if e.Type != "bridge_approval" {
			continue
		}
		if e.Source == srcNS {
			sourceSigned = true
		}
		if e.Source == tgtNS {
			targetSigned = true
		}
	}

	return namespace.BridgeRule{
		SourceNamespace: srcNS,
		TargetNamespace: tgtNS,
		SourceSigned:    sourceSigned,
		TargetSigned:    targetSigned,
		CellID:          c.CellID,
		SystemTime:      c.Header.SystemTime,
	}, true
}

func decodePolicyHead(c cell.Cell) (PolicyHeadRecord, bool) {
	obj, ok := c.Fact.Object.(map[string]interface{})
	if !ok {
		return PolicyHeadRecord{}, false
	}
	ns, _ := obj["namespace"].(string)
	prev, _ := obj["prev_policy_head"].(string)
	var ids []string
	if raw, ok := obj["promoted_rule_ids"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return PolicyHeadRecord{
		CellID:          c.CellID,
		Namespace:       ns,
		SystemTime:      c.Header.SystemTime,
		PromotedRuleIDs: ids,
		PrevPolicyHead:  prev,
	}, true
}

// activePolicyHead returns the PolicyHead for namespace with the
// maximal SystemTime <= asOfSystemTime, if any.
func (idx *Index) activePolicyHead(ns, asOfSystemTime string) (PolicyHeadRecord, bool) {
	heads := idx.policyHeads[ns]
	var best PolicyHeadRecord
	found := false
	for _, h := range heads {
		if h.SystemTime > asOfSystemTime {
			break
		}
		best = h
		found = true
	}
	return best, found
}

// PolicyMode selects whether a query is restricted to promoted rules.
type PolicyMode string

const (
	PolicyModeAll          PolicyMode = "all"
	PolicyModePromotedOnly PolicyMode = "promoted_only"
)

// Request is Scholar's query_facts contract.
type Request struct {
	RequesterNamespace string
	TargetNamespace    string
	Subject            *string
	Predicate          *string
	AtValidTime        string
	AsOfSystemTime     string
	PolicyMode         PolicyMode
}

// Event records one authorization or resolution decision made during
// a query, for audit/diagnostic purposes.
type Event struct {
	CellID string
	Reason string
}

// ProofBundle lists every cell consulted in producing a QueryResult,
// plus the PolicyHead cell id that governed it (empty if PolicyMode
// was "all").
type ProofBundle struct {
	ConsultedCellIDs    []string
	ActivePolicyHeadID string
}

// Result is Scholar's query_facts return value.
type Result struct {
	Facts            []FactRecord
	Candidates       []FactRecord
	BridgesUsed      []string
	ResolutionEvents []Event
	ProofBundle      ProofBundle
}

// QueryFacts runs the six-step bitemporal resolution algorithm. It
// never returns a partial result: on ctx expiring before resolution
// completes, it returns DeadlineExceeded and no side effects (the
// index itself is read-only during a query, so there is nothing to
// roll back).
func QueryFacts(ctx context.Context, idx *Index, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, apperr.Wrap(apperr.CodeDeadlineExceeded, "scholar: query deadline already expired", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result Result

	// Step 1: policy resolution.
	var promotedRuleIDs map[string]bool
	var activePolicyHeadID string
	if req.PolicyMode == PolicyModePromotedOnly {
		head, ok := idx.activePolicyHead(req.TargetNamespace, req.AsOfSystemTime)
		if ok {
			activePolicyHeadID = head.CellID
			promotedRuleIDs = make(map[string]bool, len(head.PromotedRuleIDs))
			for _, id := range head.PromotedRuleIDs {
				promotedRuleIDs[id] = true
			}
		} else {
			promotedRuleIDs = map[string]bool{}
		}
	}

	// Step 5 setup: is the requester authorized for the target at all?
	sameOrAncestor := namespace.IsAncestor(req.RequesterNamespace, req.TargetNamespace)
	var bridge namespace.BridgeRule
	var bridged bool
	if !sameOrAncestor {
		bridge, bridged = namespace.FindEffectiveBridge(idx.bridgeRules, req.RequesterNamespace, req.TargetNamespace, req.AsOfSystemTime)
		result.ResolutionEvents = append(result.ResolutionEvents, Event{CellID: bridge.CellID, Reason: "bridge_effective_clock: system_time"})
	}

	// Steps 2-5 (candidate enumeration, bitemporal filter, policy
	// filter, authorization) scan independent shards of idx.facts
	// concurrently; each shard's eligible records and drop events are
	// folded into the shared winners map afterward, sequentially, so
	// the conflict-resolution tiebreak in step 6 stays deterministic
	// regardless of shard scheduling.
	shards := shardFacts(idx.facts, numWorkers())
	shardResults := make([][]FactRecord, len(shards))
	shardEvents := make([][]Event, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			var eligible []FactRecord
			var events []Event
			for _, f := range shard {
				if err := gctx.Err(); err != nil {
					return err
				}
				ok, event := eligibleFact(idx, req, promotedRuleIDs, sameOrAncestor, bridged, f)
				if event != nil {
					events = append(events, *event)
					continue
				}
				if ok {
					eligible = append(eligible, f)
				}
			}
			shardResults[i] = eligible
			shardEvents[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, apperr.Wrap(apperr.CodeDeadlineExceeded, "scholar: query deadline exceeded mid-resolution", err)
	}

	type group struct {
		subject, predicate string
	}
	winners := make(map[group]FactRecord)

	for _, events := range shardEvents {
		result.ResolutionEvents = append(result.ResolutionEvents, events...)
	}
	for _, eligible := range shardResults {
		for _, f := range eligible {
			result.Candidates = append(result.Candidates, f)
			result.ProofBundle.ConsultedCellIDs = append(result.ProofBundle.ConsultedCellIDs, f.CellID)

			key := group{f.Subject, f.Predicate}
			current, exists := winners[key]
			if !exists || beats(f, current) {
				winners[key] = f
			}
		}
	}

	if bridged {
		result.BridgesUsed = append(result.BridgesUsed, bridge.CellID)
	}

	for _, w := range winners {
		result.Facts = append(result.Facts, w)
	}
	sort.Slice(result.Facts, func(i, j int) bool {
		if result.Facts[i].Subject != result.Facts[j].Subject {
			return result.Facts[i].Subject < result.Facts[j].Subject
		}
		return result.Facts[i].Predicate < result.Facts[j].Predicate
	})

	result.ProofBundle.ActivePolicyHeadID = activePolicyHeadID
	return result, nil
}

// eligibleFact applies steps 2-5 of query_facts to a single fact
// record. It returns (true, nil) when the record survives every
// filter, (false, nil) when it is silently out of scope (wrong
// namespace/subject/predicate/time window/policy), and (false, event)
// when it was excluded specifically for lack of authorization, which
// the caller surfaces as a resolution event.
func eligibleFact(idx *Index, req Request, promotedRuleIDs map[string]bool, sameOrAncestor, bridged bool, f FactRecord) (bool, *Event) {
	if f.Namespace != req.TargetNamespace {
		return false, nil
	}
	if req.Subject != nil && f.Subject != *req.Subject {
		return false, nil
	}
	if req.Predicate != nil && f.Predicate != *req.Predicate {
		return false, nil
	}

	// Step 3: bitemporal filter.
	if f.SystemTime > req.AsOfSystemTime {
		return false, nil
	}
	if f.ValidFrom > req.AtValidTime {
		return false, nil
	}
	if f.ValidTo != nil && req.AtValidTime >= *f.ValidTo {
		return false, nil
	}

	// Step 4: policy filter.
	if req.PolicyMode == PolicyModePromotedOnly && !promotedRuleIDs[f.RuleID] {
		return false, nil
	}

	// Step 5: authorization.
	if !sameOrAncestor && !bridged {
		return false, &Event{CellID: f.CellID, Reason: "no effective bridge authorizes cross-namespace read"}
	}

	return true, nil
}

// shardFacts splits facts into up to n contiguous, roughly equal
// shards for concurrent scanning.
func shardFacts(facts []FactRecord, n int) [][]FactRecord {
	if n < 1 {
		n = 1
	}
	if len(facts) == 0 {
		return nil
	}
	if n > len(facts) {
		n = len(facts)
	}
	shards := make([][]FactRecord, n)
	size := (len(facts) + n - 1) / n
	for i := 0; i < n; i++ {
		start := i * size
		if start >= len(facts) {
			break
		}
		end := start + size
		if end > len(facts) {
			end = len(facts)
		}
		shards[i] = facts[start:end]
	}
	return shards
}

func numWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// beats reports whether candidate wins over current under the total
// order: source_quality rank, confidence, system_time, cell_id.
func beats(candidate, current FactRecord) bool {
	if candidate.SourceQuality.Rank() != current.SourceQuality.Rank() {
		return candidate.SourceQuality.Rank() > current.SourceQuality.Rank()
	}
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	if candidate.SystemTime != current.SystemTime {
		return candidate.SystemTime > current.SystemTime
	}
	return candidate.CellID > current.CellID
}
