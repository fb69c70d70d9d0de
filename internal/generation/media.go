package generation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashureev/whoareyou/internal/llm"
	"github.com/google/uuid"
)

// MediaPrefix is the URL path generated images are served under.
const MediaPrefix = "/media/"

// MediaStore writes generated images to a directory served at MediaPrefix.
type MediaStore struct {
	dir string
}

// NewMediaStore creates a media store rooted at dir.
func NewMediaStore(dir string) *MediaStore {
	return &MediaStore{dir: dir}
}

// Dir returns the directory images are written to.
func (m *MediaStore) Dir() string { return m.dir }

// Save persists an image and returns its public reference. Images that only
// carry a remote URL are referenced as is.
func (m *MediaStore) Save(img *llm.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}
	if len(img.Data) == 0 {
		if img.URL != "" {
			return img.URL, nil
		}
		return "", fmt.Errorf("image has no data")
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	name := uuid.NewString() + extension(img.MIMEType)
	if err := os.WriteFile(filepath.Join(m.dir, name), img.Data, 0644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return MediaPrefix + name, nil
}

func extension(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
