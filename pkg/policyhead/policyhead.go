// Package policyhead implements the threshold-witness promotion state
// machine that produces PolicyHead cells. A PromotionRequest lives only
// in process memory — PENDING until enough witness signatures arrive,
// READY_TO_FINALIZE once the namespace's WitnessSet threshold is met,
// and FINALIZED only on an explicit finalize call that returns the
// resulting PolicyHead cell for the caller to append. Nothing about promotion
// progress is itself chain state.
package policyhead

import (
	"sync"
	"time"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/decisiongraph/core/pkg/canonicalize"
	"github.com/decisiongraph/core/pkg/cell"
	"github.com/decisiongraph/core/pkg/signing"
)

// Status is a PromotionRequest's lifecycle state.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusReadyToFinalize Status = "READY_TO_FINALIZE"
	StatusFinalized       Status = "FINALIZED"
	StatusArchived        Status = "ARCHIVED"
)

// WitnessSet is the decoded object of a namespace's active Rule cell
// encoding {witnesses: [...], threshold}. Witness sets are
// per-namespace; a signature valid under one namespace's set carries
// no weight in another.
type WitnessSet struct {
	Namespace string
	Witnesses []string // witness signer key ids
	Threshold int
}

func (w WitnessSet) isMember(signerKeyID string) bool {
	for _, id := range w.Witnesses {
		if id == signerKeyID {
			return true
		}
	}
	return false
}

// PromotionRequest tracks one in-flight rule promotion for a namespace.
type PromotionRequest struct {
	mu sync.Mutex

	ID              string
	Namespace       string
	PromotedRuleIDs []string
	WitnessSet      WitnessSet
	signatures      map[string]string // signer key id -> signature hex
	status          Status
	submittedAt     time.Time
	ttl             time.Duration
}

// Submit creates a new PENDING PromotionRequest. now is supplied by
// the caller (process clock), never read internally, so promotion
// expiry stays deterministic and testable.
func Submit(id, namespace string, promotedRuleIDs []string, ws WitnessSet, ttl time.Duration, now time.Time) *PromotionRequest {
	return &PromotionRequest{
		ID:              id,
		Namespace:       namespace,
		PromotedRuleIDs: append([]string(nil), promotedRuleIDs...),
		WitnessSet:      ws,
		signatures:      make(map[string]string),
		status:          StatusPending,
		submittedAt:     now,
		ttl:             ttl,
	}
}

// Status returns the request's current lifecycle state.
func (p *PromotionRequest) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// IsExpired reports whether now is past the request's TTL. An expired
// request is still PENDING or READY_TO_FINALIZE until Archive is
// called explicitly — expiry never mutates state on its own.
func (p *PromotionRequest) IsExpired(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ttl <= 0 {
		return false
	}
	return now.After(p.submittedAt.Add(p.ttl))
}

// Archive marks an expired, not-yet-finalized request ARCHIVED. It
// has no chain effect: an archived promotion simply stops accepting
// signatures.
func (p *PromotionRequest) Archive(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == StatusFinalized {
		return apperr.New(apperr.CodeInvalidField, "cannot archive a finalized promotion")
	}
	if p.ttl > 0 && !now.After(p.submittedAt.Add(p.ttl)) {
		return apperr.New(apperr.CodeInvalidField, "promotion has not expired")
	}
	p.status = StatusArchived
	return nil
}

// AddSignature validates that signerKeyID is a member of the
// namespace's WitnessSet and that signature verifies against the
// canonical promotion payload, then records it. Once distinct valid
// signatures reach the set's threshold, the request advances to
// READY_TO_FINALIZE.
func (p *PromotionRequest) AddSignature(signerKeyID, signatureHex string, resolver signing.KeyResolver) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusFinalized || p.status == StatusArchived {
		return apperr.New(apperr.CodeInvalidField, "promotion is no longer accepting signatures")
	}
	if !p.WitnessSet.isMember(signerKeyID) {
		return apperr.New(apperr.CodeAuthorizationDenied, "signer is not a member of this namespace's witness set")
	}

	payload, err := signing.PromotionPayload(p.Namespace, p.ID, p.PromotedRuleIDs)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidField, "building promotion payload", err)
	}

	ok, err := signing.VerifyWithResolver(resolver, signerKeyID, signatureHex, payload)
	if err != nil {
		return apperr.Wrap(apperr.CodeWitnessSignatureInvalid, "verifying witness signature", err)
	}
	if !ok {
		return apperr.New(apperr.CodeWitnessSignatureInvalid, "witness signature does not verify")
	}

	p.signatures[signerKeyID] = signatureHex
	if len(p.signatures) >= p.WitnessSet.Threshold {
		p.status = StatusReadyToFinalize
	}
	return nil
}

// Finalize builds and returns the PolicyHead cell for a
// READY_TO_FINALIZE request, linking it to prevPolicyHead (the
// namespace's previous PolicyHead cell id, or "" if this is the
// first). Finalize never happens automatically on reaching
// threshold; the caller decides when to commit.
func (p *PromotionRequest) Finalize(graphID, prevCellHash, prevPolicyHead, systemTime string, hashScheme cell.HashScheme) (cell.Cell, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusReadyToFinalize {
		return cell.Cell{}, apperr.New(apperr.CodeInvalidField, "promotion is not ready to finalize")
	}

	policyHash := canonicalize.PolicyHash(p.PromotedRuleIDs)

	ruleIDs := make([]interface{}, len(p.PromotedRuleIDs))
	for i, id := range p.PromotedRuleIDs {
		ruleIDs[i] = id
	}
	signatures := make(map[string]interface{}, len(p.signatures))
	for k, v := range p.signatures {
		signatures[k] = v
	}

	header := cell.Header{
		Version:      "1.0",
		GraphID:      graphID,
		CellType:     cell.TypePolicyHead,
		SystemTime:   systemTime,
		PrevCellHash: prevCellHash,
		HashScheme:   hashScheme,
	}
	fact := cell.Fact{
		Namespace: p.Namespace,
		Subject:   "policy:" + p.Namespace,
		Predicate: "promotes",
		Object: map[string]interface{}{
			"namespace":         p.Namespace,
			"policy_hash":       policyHash,
			"promoted_rule_ids": ruleIDs,
			"witness_signatures": signatures,
			"prev_policy_head":  prevPolicyHead,
		},
		Confidence:    1.0,
		SourceQuality: cell.SourceVerified,
		ValidFrom:     systemTime,
	}

	sealed, err := cell.Seal(header, fact, cell.LogicAnchor{}, nil, cell.Proof{})
	if err != nil {
		return cell.Cell{}, err
	}

	p.status = StatusFinalized
	return sealed, nil
}

// Store holds per-namespace PromotionRequests keyed by promotion id.
// It is process-local and exists only to let callers look requests up
// by id; it never touches the chain itself.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*PromotionRequest
}

// NewStore creates an empty promotion request store.
func NewStore() *Store {
	return &Store{requests: make(map[string]*PromotionRequest)}
}

// Put registers a PromotionRequest under its id.
func (s *Store) Put(p *PromotionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[p.ID] = p
}

// Get looks up a PromotionRequest by id.
func (s *Store) Get(id string) (*PromotionRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.requests[id]
	return p, ok
}
