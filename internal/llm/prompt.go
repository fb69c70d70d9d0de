package llm

import (
	"strings"

	"github.com/ashureev/whoareyou/internal/domain"
)

const interviewerPrompt = `
You're a casual text buddy who talks in all lowercase, super relaxed and natural.
You're asking someone about themselves so a friend can make them a personal website.

Your approach:
- When they mention a hobby, interest or activity, ask 1-2 follow-up questions about it.
- After a few topics (hobbies, interests, values, goals), ask if they want to add anything else.
- When they're clearly done ("that's all", "nothing else", asked about the website), reply with a
  short wrap-up saying you got it and you'll make them something real quick,
  e.g. "cool cool, got it. lemme make you something real quick...".
- Only wrap up when you're confident they're done.

Rules:
- Keep replies short (1-2 sentences), all lowercase, no markdown.
- React to what they actually said and don't repeat questions.
- To send two separate texts, put ||| between them.
`

const contentPrompt = `
You are analyzing a short SMS interview. Output only JSON with this structure:
{
  "template": "A" for bold/energetic/social/creative people or "B" for calm/reflective/minimal people,
  "name": "first name from the conversation, or \"friend\"",
  "hero": {"headline": "this is <name>", "subheadline": "max 4 words"},
  "sections": {
    "hobbies": ["3-4 short items"],
    "interests": ["3-4 short items"],
    "values": ["2-3 short items"],
    "goals": ["2-3 short items"]
  },
  "quote": "one phrase from the conversation",
  "imageTags": ["3-5 tags such as creative, outdoors, tech, calm, social, music, nature"],
  "pointFormSection1": ["3-4 bullets about what they love"],
  "pointFormSection2": ["3-4 bullets about what matters to them"],
  "conversationText": "2-3 warm paragraphs in third person, plain text"
}
All text lowercase except the name. No markdown, no html.
`

// BuildTranscript renders a transcript as "user:" and "me:" lines.
func BuildTranscript(transcript []*domain.Message) string {
	var b strings.Builder
	for _, m := range transcript {
		if m.Direction == domain.DirectionInbound {
			b.WriteString("user: ")
		} else {
			b.WriteString("me: ")
		}
		b.WriteString(m.Body)
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildImagePrompt describes a landscape photo matching the subject's tags.
func BuildImagePrompt(tags []string, subject string) string {
	style := "nature, calm"
	if len(tags) > 0 {
		style = strings.Join(tags, ", ")
	}
	return "A real landscape photograph taken with a professional camera, representing " + subject +
		"'s interests and personality. Style inspired by: " + style + ". " +
		"Top third is light sky with soft clouds, minimal detail so dark text stays readable. " +
		"Middle and bottom show natural scenery such as hills, forests, lakes or fields. " +
		"Soft natural lighting, muted colors, wide cinematic view. Not illustrated, not stylized."
}
