package imagelib

import (
	"testing"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	lib := Default()

	img, ok := lib.Get("outdoors-2")
	require.True(t, ok)
	assert.Equal(t, "/images/outdoors-2.jpg", img.URL)
	assert.Contains(t, img.Tags, "hiking")
}

func TestPickPrefersBestMatches(t *testing.T) {
	lib := Default()

	picks := lib.Pick([]string{"Outdoors", "hiking", "nature"}, domain.TemplateCalm)
	require.Len(t, picks, MaxPicks)
	// Ties keep catalog order.
	assert.Equal(t, []string{"outdoors-2", "calm-2", "outdoors-1", "calm-1"}, IDs(picks))
}

func TestPickFallsBackToCatalogOrder(t *testing.T) {
	lib, err := Parse([]byte(`
images:
  - {id: a, url: /a.jpg, tags: [space]}
  - {id: b, url: /b.jpg, tags: [ocean]}
  - {id: c, url: /c.jpg, tags: [desert]}
  - {id: d, url: /d.jpg, tags: [forest]}
  - {id: e, url: /e.jpg, tags: [city]}
`))
	require.NoError(t, err)

	picks := lib.Pick([]string{"space"}, domain.TemplateBold)
	assert.Equal(t, []string{"a", "b", "c", "d"}, IDs(picks))
}

func TestFallbackLimit(t *testing.T) {
	picks := Default().Fallback([]string{"music"}, domain.TemplateBold, 2)
	assert.Len(t, picks, 2)
}

func TestParseRejectsBadCatalog(t *testing.T) {
	_, err := Parse([]byte(`images: []`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
images:
  - {id: a, url: /a.jpg}
  - {id: a, url: /b.jpg}
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`images: [`))
	assert.Error(t, err)
}
