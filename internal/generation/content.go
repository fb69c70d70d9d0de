package generation

import (
	"strings"
	"unicode"

	"github.com/ashureev/whoareyou/internal/domain"
)

// DefaultName is used when no name can be found in the conversation.
const DefaultName = "friend"

var consentWords = map[string]bool{
	"yes": true, "ok": true, "okay": true, "sure": true, "yep": true, "yeah": true, "ya": true,
}

// ExtractName guesses the interviewee's first name: the first word of the
// first short inbound reply that is not a consent reply.
func ExtractName(transcript []*domain.Message) string {
	for _, m := range domain.Inbound(transcript) {
		body := strings.TrimSpace(m.Body)
		if body == "" || len(body) >= 50 {
			continue
		}
		words := strings.FieldsFunc(body, func(r rune) bool {
			return !unicode.IsLetter(r) && r != '\'' && r != '-'
		})
		if len(words) == 0 || hasConsentWord(words) {
			continue
		}
		return words[0]
	}
	return ""
}

func hasConsentWord(words []string) bool {
	for _, w := range words {
		if consentWords[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

// NormalizeContent applies the house style to generated content: every text
// field is lowercase except the name, and the headline is "this is <name>".
func NormalizeContent(c *domain.SiteContent, transcript []*domain.Message) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || strings.EqualFold(c.Name, DefaultName) {
		if extracted := ExtractName(transcript); extracted != "" {
			c.Name = extracted
		} else {
			c.Name = DefaultName
		}
	}
	if c.Template != domain.TemplateBold && c.Template != domain.TemplateCalm {
		c.Template = domain.TemplateCalm
	}

	c.Hero.Headline = "this is " + strings.ToLower(c.Name)
	c.Hero.Subheadline = strings.ToLower(strings.TrimSpace(c.Hero.Subheadline))
	c.Quote = strings.ToLower(strings.TrimSpace(c.Quote))
	c.Summary = strings.ToLower(strings.TrimSpace(c.Summary))

	lowerAll(c.PointFormSection1)
	lowerAll(c.PointFormSection2)
	lowerAll(c.Sections.Hobbies)
	lowerAll(c.Sections.Interests)
	lowerAll(c.Sections.Values)
	lowerAll(c.Sections.Goals)
	lowerAll(c.ImageTags)
}

func lowerAll(items []string) {
	for i, s := range items {
		items[i] = strings.ToLower(strings.TrimSpace(s))
	}
}
