package fates

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sort"
)

// LoadChecker reports each candidate adjudicator's current concurrent case
// load, so DrawAdjudicators can exclude anyone serving above the
// configured threshold (spec section 4.6's adjudicator selection).
type LoadChecker interface {
	CurrentLoad(adjudicatorID string) int
}

// DrawAdjudicators deterministically selects three distinct adjudicators of
// the required rank, seeded by the petition's content hash so the draw is
// reproducible (spec section 4.6). Candidates at or above maxConcurrentLoad
// are excluded before the draw.
func DrawAdjudicators(contentHash string, candidates []string, load LoadChecker, maxConcurrentLoad int) ([]string, error) {
	eligible := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if load != nil && load.CurrentLoad(c) >= maxConcurrentLoad {
			continue
		}
		eligible = append(eligible, c)
	}
	sort.Strings(eligible) // deterministic base ordering before the seeded shuffle
	if len(eligible) < 3 {
		return nil, fmt.Errorf("fates: only %d eligible adjudicators, need 3", len(eligible))
	}

	rng := rand.New(rand.NewChaCha8(seedFromContentHash(contentHash)))
	rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	return eligible[:3], nil
}

// seedFromContentHash derives a 32-byte ChaCha8 seed from the petition's
// content hash so the draw is a deterministic function of petition
// identity alone.
func seedFromContentHash(contentHash string) [32]byte {
	if decoded, err := hex.DecodeString(contentHash); err == nil && len(decoded) == 32 {
		var seed [32]byte
		copy(seed[:], decoded)
		return seed
	}
	// Non-hex or wrong-length input (e.g. an "<algo>:<hex>" formatted
	// hash): fold it through SHA-256 to get a stable 32-byte seed.
	return sha256.Sum256([]byte(contentHash))
}
