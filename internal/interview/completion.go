// Package interview implements the SMS interview state machine: the
// completion heuristic, the conversation policy and the session controller
// that drives one inbound message end to end.
package interview

import (
	"strings"
	"unicode"
)

// DefaultMinTurns is the number of interview answers required before an
// interview may be considered complete.
const DefaultMinTurns = 2

// WrapUpPhrases are the interviewer phrases that announce the hand-off to
// site generation.
var WrapUpPhrases = []string{
	"make you something",
	"making you something",
	"make something for you",
	"making something for you",
}

// UserDonePhrases are interviewee phrases that say there is nothing more to add.
var UserDonePhrases = []string{
	"that's it",
	"that's all",
	"that's everything",
	"nothing else",
	"i'm done",
	"all set",
	"we good",
	"we're good",
}

// CompletionHeuristic decides whether a text signals the end of an interview.
type CompletionHeuristic interface {
	IsInterviewComplete(text string, turnsSoFar int) bool
}

// CompletionFunc adapts a plain function to CompletionHeuristic.
type CompletionFunc func(text string, turnsSoFar int) bool

// IsInterviewComplete calls f.
func (f CompletionFunc) IsInterviewComplete(text string, turnsSoFar int) bool {
	return f(text, turnsSoFar)
}

// PhraseHeuristic matches a fixed phrase set on word boundaries, ignoring
// case and punctuation.
type PhraseHeuristic struct {
	phrases  []string
	minTurns int
}

// NewPhraseHeuristic builds a heuristic for the given phrases.
func NewPhraseHeuristic(phrases []string, minTurns int) *PhraseHeuristic {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalizeText(p); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &PhraseHeuristic{phrases: normalized, minTurns: minTurns}
}

// NewWrapUpHeuristic matches interviewer wrap-up replies.
func NewWrapUpHeuristic() *PhraseHeuristic {
	return NewPhraseHeuristic(WrapUpPhrases, DefaultMinTurns)
}

// NewUserDoneHeuristic matches interviewee "that's all" messages.
func NewUserDoneHeuristic() *PhraseHeuristic {
	return NewPhraseHeuristic(UserDonePhrases, DefaultMinTurns)
}

// IsInterviewComplete reports whether text contains a known phrase and at
// least minTurns answers have been received.
func (h *PhraseHeuristic) IsInterviewComplete(text string, turnsSoFar int) bool {
	return turnsSoFar >= h.minTurns && h.Matches(text)
}

// Matches reports whether text contains one of the phrases, regardless of turns.
func (h *PhraseHeuristic) Matches(text string) bool {
	return containsNormalized(normalizeText(text), h.phrases)
}

// ContainsPhrase reports whether text contains any of phrases on word boundaries.
func ContainsPhrase(text string, phrases []string) bool {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := normalizeText(p); n != "" {
			normalized = append(normalized, n)
		}
	}
	return containsNormalized(normalizeText(text), normalized)
}

func containsNormalized(text string, phrases []string) bool {
	if text == "" {
		return false
	}
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// normalizeText lowercases s, drops apostrophes so "that's" matches "thats",
// and collapses every other non-alphanumeric run into a single space.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
