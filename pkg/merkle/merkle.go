// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkle

import (
	"bytes"
	"errors"

	"github.com/btorressz/coffee-futures/pkg/crypto/hashing"
)

// ErrProofMismatch is returned when a recomputed root does not match the
// committed root.
var ErrProofMismatch = errors.New("merkle proof mismatch")

// Root is a 32-byte Merkle commitment.
type Root = [32]byte

// HashLeaf hashes raw leaf bytes into the leaf node digest.
func HashLeaf(leaf []byte) [32]byte {
	return hashing.SHA256(leaf)
}

// HashPair combines two sibling digests. The pair is concatenated in
// lexicographic byte order before hashing, so the recomputed root is
// independent of left/right position information.
func HashPair(a, b [32]byte) [32]byte {
	return hashPair(hashing.NewHasher(), a, b)
}

func hashPair(h *hashing.Hasher, a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return h.Hash32(a[:], b[:])
	}
	return h.Hash32(b[:], a[:])
}

// ComputeRoot folds a leaf through its sibling path and returns the root.
// One hasher state carries the whole fold.
func ComputeRoot(leaf []byte, proof [][32]byte) [32]byte {
	h := hashing.NewHasher()
	node := HashLeaf(leaf)
	for _, sibling := range proof {
		node = hashPair(h, node, sibling)
	}
	return node
}

// Verify recomputes the root for (leaf, proof) and compares it against the
// committed root.
func Verify(root [32]byte, leaf []byte, proof [][32]byte) error {
	if ComputeRoot(leaf, proof) != root {
		return ErrProofMismatch
	}
	return nil
}

// BuildRoot constructs the root over a set of leaves with the same pair
// ordering rule used by Verify. Odd nodes are carried up unpaired. Callers use
// it to commit delivery manifests; Proof extracts the sibling path for one
// leaf of the same set.
func BuildRoot(leaves [][]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	h := hashing.NewHasher()
	level := make([][32]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = HashLeaf(leaf)
	}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(h, level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// Proof returns the sibling path for leaves[index] under BuildRoot's shape.
func Proof(leaves [][]byte, index int) ([][32]byte, error) {
	if index < 0 || index >= len(leaves) {
		return nil, errors.New("merkle: leaf index out of range")
	}
	h := hashing.NewHasher()
	level := make([][32]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = HashLeaf(leaf)
	}
	var proof [][32]byte
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				if i == index {
					index = len(next)
				}
				next = append(next, level[i])
				continue
			}
			if i == index || i+1 == index {
				sibling := level[i]
				if i == index {
					sibling = level[i+1]
				}
				proof = append(proof, sibling)
				index = len(next)
			}
			next = append(next, hashPair(h, level[i], level[i+1]))
		}
		level = next
	}
	return proof, nil
}
