// Package imagelib is the curated image catalog used for site imagery and as
// the fallback when hero image generation fails.
package imagelib

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/ashureev/whoareyou/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// MaxPicks is the number of images Pick returns.
const MaxPicks = 4

// minMatches is the number of matching images needed before Pick stops
// padding with catalog defaults.
const minMatches = 3

// Image is one catalog entry.
type Image struct {
	ID   string   `yaml:"id" json:"id"`
	URL  string   `yaml:"url" json:"url"`
	Tags []string `yaml:"tags" json:"tags"`
}

type catalog struct {
	Images      []Image                      `yaml:"images"`
	Preferences map[domain.Template][]string `yaml:"template_preferences"`
}

// Library selects catalog images by tag.
type Library struct {
	images      []Image
	byID        map[string]Image
	preferences map[domain.Template][]string
}

// Default loads the embedded catalog.
func Default() *Library {
	lib, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded image catalog: %v", err))
	}
	return lib
}

// Parse builds a library from YAML.
func Parse(data []byte) (*Library, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode image catalog: %w", err)
	}
	if len(c.Images) == 0 {
		return nil, fmt.Errorf("image catalog is empty")
	}

	lib := &Library{
		images:      c.Images,
		byID:        make(map[string]Image, len(c.Images)),
		preferences: c.Preferences,
	}
	for _, img := range c.Images {
		if img.ID == "" || img.URL == "" {
			return nil, fmt.Errorf("image catalog entry missing id or url")
		}
		if _, dup := lib.byID[img.ID]; dup {
			return nil, fmt.Errorf("duplicate image id %q", img.ID)
		}
		lib.byID[img.ID] = img
	}
	return lib, nil
}

// Get returns an image by ID.
func (l *Library) Get(id string) (Image, bool) {
	img, ok := l.byID[id]
	return img, ok
}

// Pick returns up to MaxPicks images matching the content tags plus the
// template's preferred tags, best matches first. When fewer than three
// images match, the first catalog images are returned instead.
func (l *Library) Pick(tags []string, template domain.Template) []Image {
	wanted := make(map[string]bool)
	for _, t := range tags {
		wanted[strings.ToLower(strings.TrimSpace(t))] = true
	}
	for _, t := range l.preferences[template] {
		wanted[t] = true
	}

	type scored struct {
		img   Image
		score int
	}
	var matched []scored
	for _, img := range l.images {
		score := 0
		for _, t := range img.Tags {
			if wanted[t] {
				score++
			}
		}
		if score > 0 {
			matched = append(matched, scored{img, score})
		}
	}

	if len(matched) < minMatches {
		return l.first(MaxPicks)
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if len(matched) > MaxPicks {
		matched = matched[:MaxPicks]
	}
	out := make([]Image, len(matched))
	for i, m := range matched {
		out[i] = m.img
	}
	return out
}

// Fallback returns the n best catalog images to stand in for generated heroes.
func (l *Library) Fallback(tags []string, template domain.Template, n int) []Image {
	picks := l.Pick(tags, template)
	if len(picks) > n {
		picks = picks[:n]
	}
	return picks
}

func (l *Library) first(n int) []Image {
	if n > len(l.images) {
		n = len(l.images)
	}
	out := make([]Image, n)
	copy(out, l.images[:n])
	return out
}

// IDs returns the IDs of images.
func IDs(images []Image) []string {
	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	return ids
}
