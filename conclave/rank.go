package conclave

import "sort"

// OrderParticipants returns participants sorted in deterministic
// rank-priority order (Kings, then Dukes, then Marquises, then Presidents,
// then Princes/Earls/Knights together), ties broken by stable ArchonID
// order, mirroring a deterministic validator-ordering idiom common in BFT
// consensus engines (sort.Slice over a stable secondary key).
func OrderParticipants(participants []Participant) []Participant {
	ordered := make([]Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := rankTier[ordered[i].Rank], rankTier[ordered[j].Rank]
		if ti != tj {
			return ti < tj
		}
		return ordered[i].ArchonID < ordered[j].ArchonID
	})
	return ordered
}

// forbiddenExecutionDetailRanks lists the ranks spec section 4.5 forbids
// from defining execution details in debate speech; a speech from one of
// these ranks that does so is flagged via ViolationRecord, never rejected.
var forbiddenExecutionDetailRanks = map[Rank]struct{}{
	RankPrince: {},
	RankEarl:   {},
	RankKnight: {},
}

// IsForbiddenFromExecutionDetail reports whether rank may not define
// execution details in debate speech.
func IsForbiddenFromExecutionDetail(rank Rank) bool {
	_, forbidden := forbiddenExecutionDetailRanks[rank]
	return forbidden
}
