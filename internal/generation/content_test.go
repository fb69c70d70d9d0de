package generation

import (
	"testing"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/stretchr/testify/assert"
)

func inbound(bodies ...string) []*domain.Message {
	msgs := make([]*domain.Message, len(bodies))
	for i, b := range bodies {
		msgs[i] = &domain.Message{Direction: domain.DirectionInbound, Body: b}
	}
	return msgs
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		name string
		msgs []*domain.Message
		want string
	}{
		{"skips consent", inbound("yes!", "Alex"), "Alex"},
		{"first word", inbound("sure", "jamie lee"), "jamie"},
		{"strips punctuation", inbound("ok", "Sam."), "Sam"},
		{"skips long answers", inbound("i have been hiking since i was a kid in the mountains of colorado", "Riley"), "Riley"},
		{"nothing usable", inbound("yeah", "ok sure"), ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractName(tt.msgs))
		})
	}
}

func TestNormalizeContent(t *testing.T) {
	c := &domain.SiteContent{
		Template:          "X",
		Name:              "friend",
		Hero:              domain.Hero{Headline: "A Bold Headline", Subheadline: "In Their Words"},
		Quote:             "Keep Climbing",
		Summary:           "Alex Loves The Outdoors.",
		PointFormSection1: []string{" Hiking "},
		Sections:          domain.Sections{Hobbies: []string{"Coding"}},
		ImageTags:         []string{"Outdoors"},
	}

	NormalizeContent(c, inbound("yes", "Alex"))

	assert.Equal(t, "Alex", c.Name)
	assert.Equal(t, domain.TemplateCalm, c.Template)
	assert.Equal(t, "this is alex", c.Hero.Headline)
	assert.Equal(t, "in their words", c.Hero.Subheadline)
	assert.Equal(t, "keep climbing", c.Quote)
	assert.Equal(t, "alex loves the outdoors.", c.Summary)
	assert.Equal(t, []string{"hiking"}, c.PointFormSection1)
	assert.Equal(t, []string{"coding"}, c.Sections.Hobbies)
	assert.Equal(t, []string{"outdoors"}, c.ImageTags)
}

func TestNormalizeContentDefaultsName(t *testing.T) {
	c := &domain.SiteContent{Template: domain.TemplateBold}
	NormalizeContent(c, inbound("yes"))
	assert.Equal(t, DefaultName, c.Name)
	assert.Equal(t, "this is friend", c.Hero.Headline)
	assert.Equal(t, domain.TemplateBold, c.Template)
}
