// Package canonicalize produces the two byte representations the
// ledger is allowed to hash: RFC 8785 JSON Canonicalization Scheme
// (JCS) for the "canon:rfc8785:v1" hash scheme, and a fixed
// concatenation of sealed fields for the legacy "legacy:concat:v1"
// scheme. Floating-point numbers are rejected in both — a cell seal
// must be reproducible bit-for-bit on any platform, and IEEE-754
// formatting is not.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ErrFloatNotAllowed is returned when a structured payload contains a
// floating-point number anywhere in its tree.
var ErrFloatNotAllowed = fmt.Errorf("canonicalize: floating-point values are not permitted in a hashed payload")

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Key features:
//  1. Object keys are sorted lexicographically by UTF-8 byte value.
//  2. HTML escaping is disabled (unlike plain encoding/json).
//  3. Every number is checked for an integral value; non-integral
//     numbers return ErrFloatNotAllowed instead of being formatted.
func JCS(v interface{}) ([]byte, error) {
	// Marshal through the standard encoder first so struct tags,
	// omitempty, and custom MarshalJSON methods are honored, then
	// decode into a generic tree we re-serialize deterministically.
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	return marshalRecursive(generic)
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ContainsFloat reports whether v, once round-tripped through JSON,
// contains a non-integral number anywhere in its tree. The Judgment
// constructor calls this before sealing so a disallowed payload never
// reaches the hasher (spec §8 invariant 10); cell.Seal relies on JCS
// itself rejecting such a payload.
func ContainsFloat(v interface{}) bool {
	_, err := JCS(v)
	return err == ErrFloatNotAllowed
}

func marshalRecursive(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // RFC 8785 requires no HTML escaping.

	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			return nil, ErrFloatNotAllowed
		}
		return []byte(s), nil
	case string:
		if err := enc.Encode(t); err != nil {
			return nil, err
		}
		// json.Encoder adds a trailing newline we must trim.
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	case []interface{}:
		buf.Reset()
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalRecursive(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		buf.Reset()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalRecursive(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalRecursive(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		// float64 reaches here only if the caller bypassed UseNumber;
		// reject rather than silently formatting an IEEE-754 value.
		if _, isFloat := v.(float64); isFloat {
			return nil, ErrFloatNotAllowed
		}
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
	}
}

// LegacyConcat implements the "legacy:concat:v1" hash scheme: a fixed,
// documented sequence of sealed fields concatenated as UTF-8 strings
// with no separator. The scheme is only ever invoked with the exact
// field count and order fixed by spec §6, so there is no delimiter
// ambiguity to resolve. Only string object values are legal under this
// scheme — callers must reject structured objects before reaching here.
func LegacyConcat(fields ...string) []byte {
	var buf bytes.Buffer
	for _, f := range fields {
		buf.WriteString(f)
	}
	return buf.Bytes()
}

// LegacyConcatHash is the SHA-256 hex digest of LegacyConcat(fields...).
func LegacyConcatHash(fields ...string) string {
	return HashBytes(LegacyConcat(fields...))
}

// PolicyHash computes SHA256(sorted(ruleIDs)) the way a PolicyHead cell's
// policy_hash field is defined: rule ids sorted lexicographically, then
// joined with a NUL separator before hashing, so no id can be split to
// collide with an adjacent one.
func PolicyHash(ruleIDs []string) string {
	sorted := append([]string(nil), ruleIDs...)
	sort.Strings(sorted)

	var buf bytes.Buffer
	for _, id := range sorted {
		buf.WriteString(id)
		buf.WriteByte(0)
	}
	return HashBytes(buf.Bytes())
}
