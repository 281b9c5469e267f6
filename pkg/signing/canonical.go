package signing

import (
	"sort"

	"github.com/decisiongraph/core/pkg/canonicalize"
)

const sigPrefixEd25519 = "ed25519"

// SignatureType returns the "ed25519:<key-id>" marker a sealed cell or
// PolicyHead snapshot stores alongside the signature itself, so a
// verifier knows both the algorithm and which key to resolve.
func SignatureType(keyID string) string {
	return sigPrefixEd25519 + ":" + keyID
}

// PromotionPayload returns the canonical bytes a witness signs when
// adding a signature to a promotion request: the fixed-shape object
// {action, namespace, promotion_id, promoted_rule_ids} with rule ids
// sorted, per the promotion protocol.
func PromotionPayload(namespace, promotionID string, promotedRuleIDs []string) ([]byte, error) {
	sorted := append([]string(nil), promotedRuleIDs...)
	sort.Strings(sorted)

	return canonicalize.JCS(map[string]interface{}{
		"action":            "promote_policy",
		"namespace":         namespace,
		"promotion_id":      promotionID,
		"promoted_rule_ids": sorted,
	})
}
