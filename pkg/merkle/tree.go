// Package merkle builds the evidence Merkle tree a sealed Cell's
// Proof.merkle_root commits to, and verifies inclusion proofs against
// it without needing the full evidence set.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/decisiongraph/core/pkg/canonicalize"
)

const (
	leafDomainTag = "decisiongraph:evidence:leaf:v1"
	nodeDomainTag = "decisiongraph:evidence:node:v1"
)

// Leaf is one evidence entry keyed by its path within the Evidence list.
type Leaf struct {
	Path     string
	LeafHash string
}

// Tree is a binary Merkle tree over a Cell's evidence entries, built
// deterministically by sorting evidence paths before hashing so the
// same evidence set always produces the same root regardless of
// insertion order.
type Tree struct {
	Leaves []Leaf
	Root   string
	levels [][]string
}

// Build constructs a Tree from a map of evidence path to value. Values
// must canonicalize cleanly (no floating-point numbers anywhere in
// their structure) since the leaf hash commits to the JCS bytes.
func Build(data map[string]interface{}) (*Tree, error) {
	paths := make([]string, 0, len(data))
	for k := range data {
		paths = append(paths, k)
	}
	sort.Strings(paths)

	leaves := make([]Leaf, len(paths))
	for i, path := range paths {
		canonical, err := canonicalize.JCS(data[path])
		if err != nil {
			return nil, err
		}
		leaves[i] = Leaf{
			Path:     path,
			LeafHash: sha256Hex(leafBytes(path, canonical)),
		}
	}

	if len(leaves) == 0 {
		return &Tree{}, nil
	}

	tree := &Tree{Leaves: leaves}
	level := hashesOf(leaves)
	for len(level) > 1 {
		tree.levels = append(tree.levels, level)
		level = nextLevel(level)
	}
	tree.levels = append(tree.levels, level)
	tree.Root = level[0]

	return tree, nil
}

// ProofFor returns an InclusionProof for the leaf at path, or false if
// path is not present in the tree.
func (t *Tree) ProofFor(path string) (InclusionProof, bool) {
	idx := -1
	for i, l := range t.Leaves {
		if l.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return InclusionProof{}, false
	}
	leafHash := t.Leaves[idx].LeafHash

	var steps []ProofStep
	level := hashesOf(t.Leaves)
	for len(level) > 1 {
		padded := level
		if len(padded)%2 != 0 {
			padded = append(append([]string(nil), padded...), padded[len(padded)-1])
		}
		if idx%2 == 0 {
			sibling := idx + 1
			if sibling >= len(padded) {
				sibling = idx
			}
			steps = append(steps, ProofStep{Side: "R", SiblingHash: padded[sibling]})
		} else {
			steps = append(steps, ProofStep{Side: "L", SiblingHash: padded[idx-1]})
		}
		level = nextLevel(level)
		idx = idx / 2
	}

	return InclusionProof{
		LeafPath:   path,
		LeafHash:   leafHash,
		MerkleRoot: t.Root,
		ProofPath:  steps,
	}, true
}

func leafBytes(path string, canonical []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(leafDomainTag)
	buf.WriteByte(0)
	buf.WriteString(path)
	buf.WriteByte(0)
	buf.Write(canonical)
	return buf.Bytes()
}

func hashesOf(leaves []Leaf) []string {
	hashes := make([]string, len(leaves))
	for i, l := range leaves {
		hashes[i] = l.LeafHash
	}
	return hashes
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1])
		count++
	}
	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodeDomainTag)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
