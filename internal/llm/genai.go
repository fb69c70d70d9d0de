package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/whoareyou/internal/domain"
	"google.golang.org/genai"
)

// GenAIClient implements Generator with Gemini for text and Imagen for images.
type GenAIClient struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// NewGenAIClient creates a Gemini API client.
func NewGenAIClient(ctx context.Context, apiKey, textModel, imageModel string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if textModel == "" {
		textModel = "gemini-2.5-flash"
	}
	if imageModel == "" {
		imageModel = "imagen-4.0-generate-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GenAIClient{
		client:     client,
		textModel:  textModel,
		imageModel: imageModel,
	}, nil
}

// Ready always succeeds once the client is built.
func (g *GenAIClient) Ready() error { return nil }

// NextReply implements interview.ReplyGenerator.
func (g *GenAIClient) NextReply(ctx context.Context, transcript []*domain.Message) (string, error) {
	if len(transcript) == 0 {
		return "", errors.New("empty transcript")
	}

	contents := make([]*genai.Content, 0, len(transcript))
	for _, m := range transcript {
		role := genai.Role(genai.RoleUser)
		if m.Direction == domain.DirectionOutbound {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Body, role))
	}

	temp := float32(0.9)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(interviewerPrompt, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   256,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.textModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate reply: %w", err)
	}

	text := strings.ToLower(strings.TrimSpace(res.Text()))
	if text == "" {
		return "", errors.New("genai returned empty reply")
	}
	return text, nil
}

// GenerateContent implements Generator using JSON output mode.
func (g *GenAIClient) GenerateContent(ctx context.Context, transcript []*domain.Message) (*domain.SiteContent, error) {
	contents := []*genai.Content{
		genai.NewContentFromText("Full conversation:\n"+BuildTranscript(transcript), genai.RoleUser),
	}

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(contentPrompt, genai.RoleUser),
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
	}

	res, err := g.client.Models.GenerateContent(ctx, g.textModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai generate content: %w", err)
	}
	return ParseContent(res.Text())
}

// GenerateImage implements Generator with a single 16:9 image.
func (g *GenAIClient) GenerateImage(ctx context.Context, tags []string, subject string) (*Image, error) {
	res, err := g.client.Models.GenerateImages(ctx, g.imageModel, BuildImagePrompt(tags, subject), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "16:9",
	})
	if err != nil {
		return nil, fmt.Errorf("genai generate image: %w", err)
	}
	if len(res.GeneratedImages) == 0 || res.GeneratedImages[0].Image == nil {
		return nil, errors.New("genai returned no image")
	}

	img := res.GeneratedImages[0].Image
	if len(img.ImageBytes) == 0 && img.GCSURI == "" {
		return nil, errors.New("genai returned an empty image")
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &Image{Data: img.ImageBytes, MIMEType: mime, URL: img.GCSURI}, nil
}

// ParseContent decodes model JSON output into site content. Code fences
// around the JSON are tolerated.
func ParseContent(raw string) (*domain.SiteContent, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty content response")
	}

	var content domain.SiteContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, fmt.Errorf("decode site content: %w", err)
	}
	if content.Template != domain.TemplateBold && content.Template != domain.TemplateCalm {
		content.Template = domain.TemplateCalm
	}
	return &content, nil
}

var _ Generator = (*GenAIClient)(nil)
