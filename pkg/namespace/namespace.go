// Package namespace validates hierarchical dotted namespace identifiers
// and resolves authorization: whether a role may read a namespace as of
// a given time, and whether a cross-namespace query is bridge-authorized.
package namespace

import (
	"regexp"
	"strings"

	"github.com/decisiongraph/core/pkg/apperr"
)

var (
	namespaceRE     = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}(\.[a-z][a-z0-9_]{0,63})*$`)
	rootNamespaceRE = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)
)

// Validate checks ns against the general namespace identifier regex.
func Validate(ns string) error {
	if !namespaceRE.MatchString(ns) {
		return apperr.New(apperr.CodeInvalidField, "invalid namespace identifier: "+ns)
	}
	return nil
}

// ValidateRoot checks ns as a root namespace: no dots, matching the
// root identifier regex.
func ValidateRoot(ns string) error {
	if !rootNamespaceRE.MatchString(ns) {
		return apperr.New(apperr.CodeInvalidField, "invalid root namespace: "+ns)
	}
	return nil
}

// IsAncestor reports whether ancestor is target itself or a dotted
// prefix-path of it (e.g. "acme" is an ancestor of "acme.hr.payroll").
func IsAncestor(ancestor, target string) bool {
	if ancestor == target {
		return true
	}
	return strings.HasPrefix(target, ancestor+".")
}

// AccessRule grants role R the ability to read namespace N within
// [ValidFrom, ValidTo). It is decoded from an AccessRule cell's
// fact.object by the caller (namespace has no cell-decoding
// dependency of its own, keeping it reusable from chain, WAL replay,
// or a pre-built index alike).
type AccessRule struct {
	Role       string
	Namespace  string
	ValidFrom  string
	ValidTo    *string // nil = open-ended
	SystemTime string  // the cell's system_time, for as-of-system-time bounding
}

// CanRead reports whether role may read namespace ns as of valid-time
// atValidTime and knowledge-time asOfSystemTime, given the full set of
// AccessRule facts visible to the caller (already filtered to the
// active PolicyHead's promoted rules, if policy_mode == promoted_only).
func CanRead(rules []AccessRule, role, ns, atValidTime, asOfSystemTime string) bool {
	for _, r := range rules {
		if r.Role != role {
			continue
		}
		if !IsAncestor(r.Namespace, ns) {
			continue
		}
		if r.SystemTime > asOfSystemTime {
			continue
		}
		if r.ValidFrom > atValidTime {
			continue
		}
		if r.ValidTo != nil && atValidTime >= *r.ValidTo {
			continue
		}
		return true
	}
	return false
}

// BridgeRule authorizes requesterNamespace to read facts from
// targetNamespace, once dual-signed by both namespace owners.
type BridgeRule struct {
	SourceNamespace   string
	TargetNamespace   string
	SourceSignerKeyID string
	TargetSignerKeyID string
	SourceSigned      bool
	TargetSigned      bool
	CellID            string
	SystemTime        string
}

// Effective reports whether b authorizes requesterNamespace to read
// targetNamespace as of asOfSystemTime — both signatures must be
// present, and the bridge's own namespaces must match exactly (a
// bridge does not cascade through ancestors; it is a named pairwise
// grant). Per the decision this module records in resolution_events,
// bridge effectiveness is judged by knowledge time (system_time), not
// validity time: a bridge is a fact about when the grant was known,
// not a historical fact with its own validity window.
func (b BridgeRule) Effective(requesterNamespace, targetNamespace, asOfSystemTime string) bool {
	if !b.SourceSigned || !b.TargetSigned {
		return false
	}
	if b.SourceNamespace != requesterNamespace || b.TargetNamespace != targetNamespace {
		return false
	}
	return b.SystemTime <= asOfSystemTime
}

// FindEffectiveBridge returns the first bridge in bridges authorizing
// requesterNamespace to read targetNamespace as of asOfSystemTime.
func FindEffectiveBridge(bridges []BridgeRule, requesterNamespace, targetNamespace, asOfSystemTime string) (BridgeRule, bool) {
	for _, b := range bridges {
		if b.Effective(requesterNamespace, targetNamespace, asOfSystemTime) {
			return b, true
		}
	}
	return BridgeRule{}, false
}
