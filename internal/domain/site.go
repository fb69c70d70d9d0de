package domain

import (
	"time"
)

// Template selects the visual style of a generated site.
type Template string

const (
	// TemplateBold is for energetic, social, creative people.
	TemplateBold Template = "A"
	// TemplateCalm is for reflective, minimal, chill people.
	TemplateCalm Template = "B"
)

// Hero is the headline block of a site.
type Hero struct {
	Headline    string `json:"headline"`
	Subheadline string `json:"subheadline"`
}

// Sections holds categorized point lists.
type Sections struct {
	Hobbies   []string `json:"hobbies"`
	Interests []string `json:"interests"`
	Values    []string `json:"values"`
	Goals     []string `json:"goals"`
}

// SiteContent is the structured output of content generation.
type SiteContent struct {
	Template          Template `json:"template"`
	Name              string   `json:"name"`
	Hero              Hero     `json:"hero"`
	Sections          Sections `json:"sections"`
	Quote             string   `json:"quote"`
	ImageTags         []string `json:"imageTags"`
	PointFormSection1 []string `json:"pointFormSection1"`
	PointFormSection2 []string `json:"pointFormSection2"`
	Summary           string   `json:"conversationText"`
}

// Site is a generated personal page for a finished interview.
type Site struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	Template   Template    `json:"template"`
	Content    SiteContent `json:"content"`
	HeroImages []string    `json:"hero_images"`
	ImageIDs   []string    `json:"image_ids"`
	CreatedAt  time.Time   `json:"created_at"`
}

// GenerationStatus is the observable status of a content generation task.
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
)

// GenerationTask tracks the background content generation for one session.
type GenerationTask struct {
	SessionID string           `json:"session_id"`
	Status    GenerationStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"last_error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Stale reports whether a pending task has been running longer than maxAge,
// which means the process that owned it most likely died.
func (t *GenerationTask) Stale(now time.Time, maxAge time.Duration) bool {
	return t.Status == GenerationPending && now.Sub(t.UpdatedAt) > maxAge
}
