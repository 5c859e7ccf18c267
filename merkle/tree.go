package merkle

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Proof is an authentication path proving a leaf's inclusion under a root.
type Proof struct {
	EpochID    int64
	Root       string
	LeafIndex  int
	AuthPath   [][]byte // sibling hashes, bottom to top
	PathIsLeft []bool   // for each AuthPath entry, whether the sibling is the left child
}

func hashPair(algorithm Algorithm, left, right []byte) []byte {
	combined := append(append([]byte(nil), left...), right...)
	switch algorithm {
	case AlgorithmBLAKE3:
		sum := blake3.Sum256(combined)
		return sum[:]
	default:
		sum := sha256.Sum256(combined)
		return sum[:]
	}
}

// computeRoot builds a binary Merkle tree over leaves and returns the root.
// An empty leaf set yields a nil root (rendered as "<algo>:empty").
func computeRoot(algorithm Algorithm, leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return nil
	}
	level := make([][]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(algorithm, level[i], level[i+1]))
			} else {
				// odd node promotes unchanged, matching the common
				// duplicate-omitted convention (no self-pairing).
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// buildProof computes the authentication path for leafIndex within leaves.
func buildProof(algorithm Algorithm, leaves [][]byte, leafIndex int) ([][]byte, []bool, error) {
	if leafIndex < 0 || leafIndex >= len(leaves) {
		return nil, nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", leafIndex, len(leaves))
	}
	level := make([][]byte, len(leaves))
	copy(level, leaves)
	index := leafIndex

	var path [][]byte
	var isLeft []bool
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				if i == index || i+1 == index {
					if i == index {
						path = append(path, level[i+1])
						isLeft = append(isLeft, false) // sibling is the right child
					} else {
						path = append(path, level[i])
						isLeft = append(isLeft, true) // sibling is the left child
					}
				}
				next = append(next, hashPair(algorithm, level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		index = index / 2
		level = next
	}
	return path, isLeft, nil
}

// VerifyProof recomputes the root along path from leafHash and compares it
// to root in constant time (spec section 4.3's verify_proof).
func VerifyProof(algorithm Algorithm, leafHash []byte, path [][]byte, isLeft []bool, root []byte) bool {
	if len(path) != len(isLeft) {
		return false
	}
	current := leafHash
	for i, sibling := range path {
		if isLeft[i] {
			current = hashPair(algorithm, sibling, current)
		} else {
			current = hashPair(algorithm, current, sibling)
		}
	}
	return subtle.ConstantTimeCompare(current, root) == 1
}

// ParseRoot splits a formatted "<algo>:<hex-root>" string back into its
// algorithm and raw root bytes. It returns ok=false for the frozen
// "<algo>:empty" representation.
func ParseRoot(formatted string) (algorithm Algorithm, root []byte, ok bool) {
	for _, alg := range []Algorithm{AlgorithmBLAKE3, AlgorithmSHA256} {
		prefix := string(alg) + ":"
		if len(formatted) > len(prefix) && formatted[:len(prefix)] == prefix {
			rest := formatted[len(prefix):]
			if rest == "empty" {
				return alg, nil, false
			}
			raw, err := hex.DecodeString(rest)
			if err != nil {
				return alg, nil, false
			}
			return alg, raw, true
		}
	}
	return "", nil, false
}
