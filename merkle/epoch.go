// Package merkle implements the Merkle Epoch Builder: it batches committed
// ledger events into contiguous epochs and exposes proof-of-inclusion over
// each epoch's root (spec section 4.3).
package merkle

import (
	"context"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/archon72/governance/ledger"
)

// Algorithm identifies the hash family used for an epoch's Merkle tree.
type Algorithm string

const (
	AlgorithmBLAKE3 Algorithm = "blake3"
	AlgorithmSHA256 Algorithm = "sha256"
)

// Epoch mirrors the MerkleEpoch entity of spec section 3.3.
type Epoch struct {
	EpochID       int64
	StartSequence int64
	EndSequence   int64
	Algorithm     Algorithm
	RootHash      string // "<algo>:<hex-root>" or "<algo>:empty"
	EventCount    int64
	RootEventID   string
}

// EpochStore persists and recalls published epochs.
type EpochStore interface {
	NextEpochID(ctx context.Context) (int64, error)
	SaveEpoch(ctx context.Context, epoch Epoch, leaves []string) error
	EpochContaining(ctx context.Context, sequence int64) (Epoch, []string, bool, error)
	LatestEndSequence(ctx context.Context) (int64, error)
}

// Builder batches ledger events into Merkle epochs.
type Builder struct {
	store     *ledger.Store
	epochs    EpochStore
	algorithm Algorithm
}

// NewBuilder constructs a Builder over the given ledger Store and epoch
// store, using algorithm for tree construction (BLAKE3 is preferred per
// spec; SHA-256 is the fallback admitted by the design).
func NewBuilder(store *ledger.Store, epochs EpochStore, algorithm Algorithm) *Builder {
	return &Builder{store: store, epochs: epochs, algorithm: algorithm}
}

// leafHash returns the raw bytes hashed for a ledger event's content_hash
// under the builder's algorithm family.
func leafHash(algorithm Algorithm, contentHash string) ([]byte, error) {
	raw, err := hex.DecodeString(contentHash)
	if err != nil {
		return nil, fmt.Errorf("merkle: decode content_hash: %w", err)
	}
	switch algorithm {
	case AlgorithmBLAKE3:
		sum := blake3.Sum256(raw)
		return sum[:], nil
	case AlgorithmSHA256:
		// content_hash is already a SHA-256 digest (hash_alg_version=1); the
		// leaf is its raw bytes, unhashed again, matching how the SHA-256
		// epoch family treats events whose content_hash is already that
		// algorithm's output.
		return raw, nil
	default:
		return nil, fmt.Errorf("merkle: unknown algorithm %q", algorithm)
	}
}

// BuildNextEpoch batches up to maxEvents unassigned events into a new,
// contiguous epoch and saves it through the EpochStore. It appends no
// ledger event for the new root, so the epoch's RootEventID stays empty.
func (b *Builder) BuildNextEpoch(ctx context.Context, maxEvents int64) (Epoch, error) {
	lastEnd, err := b.epochs.LatestEndSequence(ctx)
	if err != nil {
		return Epoch{}, fmt.Errorf("merkle: latest end sequence: %w", err)
	}
	start := lastEnd + 1

	events, err := b.store.ReadRange(ctx, start, start+maxEvents-1)
	if err != nil {
		return Epoch{}, fmt.Errorf("merkle: read range: %w", err)
	}
	if len(events) == 0 {
		return Epoch{}, fmt.Errorf("merkle: no events available to batch into an epoch")
	}

	leaves := make([]string, 0, len(events))
	leafBytes := make([][]byte, 0, len(events))
	for _, ev := range events {
		lb, err := leafHash(b.algorithm, ev.ContentHash)
		if err != nil {
			return Epoch{}, err
		}
		leaves = append(leaves, ev.ContentHash)
		leafBytes = append(leafBytes, lb)
	}

	root := computeRoot(b.algorithm, leafBytes)

	epochID, err := b.epochs.NextEpochID(ctx)
	if err != nil {
		return Epoch{}, fmt.Errorf("merkle: next epoch id: %w", err)
	}

	epoch := Epoch{
		EpochID:       epochID,
		StartSequence: start,
		EndSequence:   events[len(events)-1].Sequence,
		Algorithm:     b.algorithm,
		RootHash:      formatRoot(b.algorithm, root),
		EventCount:    int64(len(events)),
	}

	if err := b.epochs.SaveEpoch(ctx, epoch, leaves); err != nil {
		return Epoch{}, fmt.Errorf("merkle: save epoch: %w", err)
	}
	return epoch, nil
}

// ProofOfInclusion locates eventID's epoch and builds its authentication
// path (spec section 4.3).
func (b *Builder) ProofOfInclusion(ctx context.Context, eventID string) (Proof, error) {
	ev, ok, err := b.store.GetByID(ctx, eventID)
	if err != nil {
		return Proof{}, fmt.Errorf("merkle: lookup event: %w", err)
	}
	if !ok {
		return Proof{}, fmt.Errorf("merkle: unknown event %q", eventID)
	}

	epoch, leaves, ok, err := b.epochs.EpochContaining(ctx, ev.Sequence)
	if err != nil {
		return Proof{}, fmt.Errorf("merkle: epoch lookup: %w", err)
	}
	if !ok {
		return Proof{}, fmt.Errorf("merkle: event %q has no published epoch yet", eventID)
	}

	leafIndex := int(ev.Sequence - epoch.StartSequence)
	leafBytes := make([][]byte, 0, len(leaves))
	for _, lh := range leaves {
		lb, err := leafHash(epoch.Algorithm, lh)
		if err != nil {
			return Proof{}, err
		}
		leafBytes = append(leafBytes, lb)
	}

	path, isLeft, err := buildProof(epoch.Algorithm, leafBytes, leafIndex)
	if err != nil {
		return Proof{}, err
	}

	return Proof{
		EpochID:    epoch.EpochID,
		Root:       epoch.RootHash,
		LeafIndex:  leafIndex,
		AuthPath:   path,
		PathIsLeft: isLeft,
	}, nil
}

// VerifyEventProof checks that eventContentHash, under algorithm, is
// included in root via path.
func VerifyEventProof(algorithm Algorithm, eventContentHash string, proof Proof) (bool, error) {
	leaf, err := leafHash(algorithm, eventContentHash)
	if err != nil {
		return false, err
	}
	_, root, ok := ParseRoot(proof.Root)
	if !ok {
		return false, nil
	}
	return VerifyProof(algorithm, leaf, proof.AuthPath, proof.PathIsLeft, root), nil
}

// formatRoot renders the "<algo>:<hex-root>" or "<algo>:empty" convention;
// this representation is frozen per spec section 9's Open Question and must
// not change without a documented migration.
func formatRoot(algorithm Algorithm, root []byte) string {
	if len(root) == 0 {
		return fmt.Sprintf("%s:empty", algorithm)
	}
	return fmt.Sprintf("%s:%s", algorithm, hex.EncodeToString(root))
}
