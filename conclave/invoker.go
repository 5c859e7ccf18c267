package conclave

import (
	"context"
	"regexp"
	"strings"
)

// SpeechContext is the bundle handed to an AgentInvoker to produce one
// participant's debate speech, per spec section 4.5 step 3: motion text,
// round number, and the last K debate entries.
type SpeechContext struct {
	Motion       Motion
	Round        int
	RecentEntries []DebateEntry
	Participant  Participant
	RedTeam      bool
}

// SpeechResult is what an AgentInvoker returns for a debate turn.
type SpeechResult struct {
	Stance string
	Speech string
}

// VoteContext is the bundle handed to an AgentInvoker to obtain a vote.
type VoteContext struct {
	Motion      Motion
	Participant Participant
}

// VoteResult is an AgentInvoker's raw vote response, before parsing.
type VoteResult struct {
	RawResponse string
}

// AgentInvoker is the opaque seam the orchestrator calls to obtain each
// Archon's speech and vote. The actual prompts, models, and LLM providers
// behind an implementation are out of scope here (spec section 1).
type AgentInvoker interface {
	InvokeSpeech(ctx context.Context, sc SpeechContext) (SpeechResult, error)
	InvokeVote(ctx context.Context, vc VoteContext) (VoteResult, error)
}

// executionDetailPattern is the pattern rule-set spec section 4.5 step 3
// refers to for detecting a forbidden-rank speech that defines execution
// details: imperative phrasing naming a concrete mechanism.
var executionDetailPattern = regexp.MustCompile(`(?i)\b(shall implement|must execute|the function|the algorithm is|set the parameter|the exact (value|threshold))\b`)

// DefinesExecutionDetail reports whether speech trips the execution-detail
// pattern rule-set.
func DefinesExecutionDetail(speech string) bool {
	return executionDetailPattern.MatchString(speech)
}

// ParseVoteResponse parses a raw vote response into AYE/NAY/ABSTAIN,
// defaulting ambiguous responses to ABSTAIN per spec section 4.5 step 4.
func ParseVoteResponse(raw string) (choice VoteChoice, ambiguous bool) {
	switch normalizeVoteToken(raw) {
	case "AYE":
		return VoteAye, false
	case "NAY":
		return VoteNay, false
	case "ABSTAIN":
		return VoteAbstain, false
	default:
		return VoteAbstain, true
	}
}

var voteTokenPattern = regexp.MustCompile(`(?i)\b(AYE|NAY|ABSTAIN)\b`)

func normalizeVoteToken(raw string) string {
	matches := voteTokenPattern.FindAllString(raw, -1)
	if len(matches) != 1 {
		return ""
	}
	return strings.ToUpper(matches[0])
}
