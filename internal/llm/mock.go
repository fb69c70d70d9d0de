package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/whoareyou/internal/domain"
)

// Mock is a deterministic Generator for tests and local runs. Replies are
// returned in order and the last one repeats.
type Mock struct {
	mu       sync.Mutex
	replies  []string
	Content  *domain.SiteContent
	ImageErr error
	imageN   int
}

// NewMock creates a mock that answers with the given replies.
func NewMock(replies ...string) *Mock {
	return &Mock{replies: replies}
}

func (m *Mock) Ready() error { return nil }

func (m *Mock) NextReply(_ context.Context, transcript []*domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.replies) == 0 {
		last := domain.LastInbound(transcript)
		if last == nil {
			return "tell me more?", nil
		}
		return fmt.Sprintf("love that, tell me more about %q?", strings.ToLower(last.Body)), nil
	}
	r := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return r, nil
}

func (m *Mock) GenerateContent(_ context.Context, transcript []*domain.Message) (*domain.SiteContent, error) {
	if m.Content != nil {
		c := *m.Content
		return &c, nil
	}
	var facts []string
	for _, msg := range domain.Inbound(transcript) {
		facts = append(facts, msg.Body)
	}
	return &domain.SiteContent{
		Template:          domain.TemplateCalm,
		Name:              "friend",
		Hero:              domain.Hero{Subheadline: "in their own words"},
		ImageTags:         []string{"nature", "calm"},
		PointFormSection1: facts,
		Summary:           strings.Join(facts, " "),
	}, nil
}

func (m *Mock) GenerateImage(_ context.Context, tags []string, subject string) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ImageErr != nil {
		return nil, m.ImageErr
	}
	m.imageN++
	return &Image{
		Data:     []byte(fmt.Sprintf("image-%d:%s:%s", m.imageN, subject, strings.Join(tags, ","))),
		MIMEType: "image/png",
	}, nil
}

var _ Generator = (*Mock)(nil)
