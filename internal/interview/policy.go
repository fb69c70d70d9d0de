package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/whoareyou/internal/domain"
)

// BatchDelimiter separates the messages of a multi-message reply.
const BatchDelimiter = "|||"

// RefusalPhrases mark a declined consent request.
var RefusalPhrases = []string{
	"no thanks",
	"no thank you",
	"not interested",
	"nope",
	"leave me alone",
}

// ReplyGenerator produces the next interviewer message for a transcript.
type ReplyGenerator interface {
	NextReply(ctx context.Context, transcript []*domain.Message) (string, error)
}

// Script holds the fixed messages of the conversation.
type Script struct {
	Consent     string
	Farewell    string
	NameRequest string
	WrapUp      string
	Holding     string
	Completed   string
	ReEngage    string
	KeepGoing   string
	CheckIn     string
	SiteReady   string // formatted with the site URL
}

// DefaultScript returns the stock conversation messages.
func DefaultScript() Script {
	return Script{
		Consent:     "hey! a friend wants to make you a personal website. you down to answer a few quick questions? just text back yes or anything to get started!",
		Farewell:    "alright no worries, have a good one!",
		NameRequest: "first things first - what's your name?",
		WrapUp:      "cool cool, got it. lemme make you something real quick...",
		Holding:     "still working on it, hang tight...",
		Completed:   "already made it! text RESTART if you wanna make a new one",
		ReEngage:    "sorry, missed that - tell me a bit more?",
		KeepGoing:   "love that - keep going, what else?",
		CheckIn:     "anything else you wanna add or are we good?",
		SiteReady:   "alright here it is! %s - check it out",
	}
}

// SiteReadyMessage formats the link message for a finished site.
func (s Script) SiteReadyMessage(url string) string {
	return fmt.Sprintf(s.SiteReady, url)
}

// Turn is the outcome of one policy decision.
type Turn struct {
	Replies           []string
	NextState         domain.SessionState
	NextQuestionIndex int
	TriggerGeneration bool
}

// Policy decides what to say next and where the session goes.
type Policy struct {
	replies      ReplyGenerator
	wrapUp       CompletionHeuristic
	userDone     CompletionHeuristic
	refusals     []string
	script       Script
	checkInAfter int
	logger       *slog.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithWrapUpHeuristic replaces the heuristic applied to generated replies.
func WithWrapUpHeuristic(h CompletionHeuristic) PolicyOption {
	return func(p *Policy) { p.wrapUp = h }
}

// WithUserDoneHeuristic sets the heuristic applied to the latest inbound
// message. Pass nil to rely on the generated reply alone.
func WithUserDoneHeuristic(h CompletionHeuristic) PolicyOption {
	return func(p *Policy) { p.userDone = h }
}

// WithRefusalPhrases replaces the consent refusal phrases.
func WithRefusalPhrases(phrases []string) PolicyOption {
	return func(p *Policy) { p.refusals = phrases }
}

// WithScript replaces the fixed messages.
func WithScript(s Script) PolicyOption {
	return func(p *Policy) { p.script = s }
}

// WithCheckInAfter appends a check-in question once this many interview
// answers were received. Zero disables it.
func WithCheckInAfter(turns int) PolicyOption {
	return func(p *Policy) { p.checkInAfter = turns }
}

// WithPolicyLogger sets the logger.
func WithPolicyLogger(l *slog.Logger) PolicyOption {
	return func(p *Policy) { p.logger = l }
}

// NewPolicy creates a conversation policy backed by a reply generator.
func NewPolicy(replies ReplyGenerator, opts ...PolicyOption) *Policy {
	p := &Policy{
		replies:      replies,
		wrapUp:       NewWrapUpHeuristic(),
		userDone:     NewUserDoneHeuristic(),
		refusals:     RefusalPhrases,
		script:       DefaultScript(),
		checkInAfter: 4,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Script returns the messages the policy uses.
func (p *Policy) Script() Script {
	return p.script
}

// Next computes the replies and transition for a session given its full
// ordered transcript, which already includes the latest inbound message.
func (p *Policy) Next(ctx context.Context, session *domain.Session, transcript []*domain.Message) Turn {
	turn := p.next(ctx, session, transcript)
	if len(turn.Replies) == 0 && turn.NextState != domain.StateStopped {
		turn.Replies = []string{p.script.ReEngage}
	}
	return turn
}

func (p *Policy) next(ctx context.Context, session *domain.Session, transcript []*domain.Message) Turn {
	stay := Turn{NextState: session.State, NextQuestionIndex: session.QuestionIndex}

	switch session.State {
	case domain.StateConsentPending:
		latest := ""
		if m := domain.LastInbound(transcript); m != nil {
			latest = m.Body
		}
		if ContainsPhrase(latest, p.refusals) {
			return Turn{
				Replies:           []string{p.script.Farewell},
				NextState:         domain.StateStopped,
				NextQuestionIndex: session.QuestionIndex,
			}
		}
		return Turn{
			Replies:           []string{p.script.NameRequest},
			NextState:         domain.StateInterviewing,
			NextQuestionIndex: 1,
		}

	case domain.StateInterviewing:
		return p.interview(ctx, session, transcript)

	case domain.StateGeneratingSite:
		stay.Replies = []string{p.script.Holding}
		return stay

	case domain.StateCompleted:
		stay.Replies = []string{p.script.Completed}
		return stay

	case domain.StateStopped:
		return stay
	}

	p.logger.Warn("Unknown session state", "session_id", session.ID, "state", session.State)
	return stay
}

func (p *Policy) interview(ctx context.Context, session *domain.Session, transcript []*domain.Message) Turn {
	inbound := len(domain.Inbound(transcript))
	// The first inbound message of a session is the consent reply.
	turns := inbound - 1
	nextIndex := session.QuestionIndex + 1

	wrapUp := Turn{
		Replies:           []string{p.script.WrapUp},
		NextState:         domain.StateGeneratingSite,
		NextQuestionIndex: nextIndex,
		TriggerGeneration: true,
	}

	if p.userDone != nil && inbound >= DefaultMinTurns {
		if m := domain.LastInbound(transcript); m != nil && p.userDone.IsInterviewComplete(m.Body, turns) {
			return wrapUp
		}
	}

	turn := Turn{NextState: domain.StateInterviewing, NextQuestionIndex: nextIndex}

	candidate, err := p.replies.NextReply(ctx, transcript)
	if err != nil {
		p.logger.Error("Failed to generate interview reply", "session_id", session.ID, "error", err)
		return turn
	}

	if p.wrapUp.IsInterviewComplete(candidate, turns) && inbound >= DefaultMinTurns {
		return wrapUp
	}
	if ContainsPhrase(candidate, WrapUpPhrases) {
		// A wrap-up before enough answers would promise a site that is not coming.
		p.logger.Info("Suppressed early wrap-up reply", "session_id", session.ID, "turns", turns)
		turn.Replies = []string{p.script.KeepGoing}
		return turn
	}

	turn.Replies = SplitBatch(candidate)
	if p.shouldCheckIn(turns, candidate, transcript) {
		turn.Replies = append(turn.Replies, p.script.CheckIn)
	}
	return turn
}

// shouldCheckIn reports whether to ask if the interviewee has more to add.
func (p *Policy) shouldCheckIn(turns int, candidate string, transcript []*domain.Message) bool {
	if p.checkInAfter <= 0 || turns < p.checkInAfter {
		return false
	}
	if strings.Contains(strings.ToLower(candidate), "anything else") {
		return false
	}
	outbound := domain.Outbound(transcript)
	if len(outbound) > 3 {
		outbound = outbound[len(outbound)-3:]
	}
	for _, m := range outbound {
		if strings.Contains(strings.ToLower(m.Body), "anything else") {
			return false
		}
	}
	return true
}

// SplitBatch splits a multi-message reply on BatchDelimiter and drops empty parts.
func SplitBatch(text string) []string {
	var out []string
	for _, part := range strings.Split(text, BatchDelimiter) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
