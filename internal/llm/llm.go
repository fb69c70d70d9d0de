// Package llm talks to the text and image models that drive the interview
// and produce site content.
package llm

import (
	"context"
	"errors"

	"github.com/ashureev/whoareyou/internal/domain"
)

// ErrNotConfigured is returned when no model credentials are available.
var ErrNotConfigured = errors.New("content generator not configured")

// Image is a generated picture. Either Data or URL is set.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

// Generator is the content generation capability used by the service.
type Generator interface {
	// NextReply returns the next interviewer message for a transcript.
	NextReply(ctx context.Context, transcript []*domain.Message) (string, error)
	// GenerateContent turns a finished transcript into structured site content.
	GenerateContent(ctx context.Context, transcript []*domain.Message) (*domain.SiteContent, error)
	// GenerateImage produces one hero image for the given tags and subject.
	GenerateImage(ctx context.Context, tags []string, subject string) (*Image, error)
	// Ready reports whether the generator can serve requests.
	Ready() error
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) NextReply(context.Context, []*domain.Message) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) GenerateContent(context.Context, []*domain.Message) (*domain.SiteContent, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) GenerateImage(context.Context, []string, string) (*Image, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) Ready() error { return ErrNotConfigured }
