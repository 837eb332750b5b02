// Package assets picks the still image that the renderer animates.
package assets

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/newscaster/internal/db"
)

// DefaultFallbackTitle names the image used when no other choice is usable.
const DefaultFallbackTitle = "Neo Portrait"

// AssetError is returned when neither a random nor a fallback image is available.
type AssetError struct {
	Message string
	Cause   error
}

func (e *AssetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("asset selection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("asset selection failed: %s", e.Message)
}

func (e *AssetError) Unwrap() error {
	return e.Cause
}

// Source lists the available avatar images.
type Source interface {
	ListAvatarImages(ctx context.Context) ([]db.AvatarImage, error)
}

// Selector chooses an avatar image uniformly at random.
type Selector struct {
	source        Source
	fallbackTitle string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector. A nil rng is seeded from the clock.
func NewSelector(source Source, fallbackTitle string, rng *rand.Rand) *Selector {
	if fallbackTitle == "" {
		fallbackTitle = DefaultFallbackTitle
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{source: source, fallbackTitle: fallbackTitle, rng: rng}
}

// Select returns the URL of a randomly chosen image. The fallback image is
// resolved before the pick so it is always available as the answer when the
// pick is unusable.
func (s *Selector) Select(ctx context.Context) (string, error) {
	images, err := s.source.ListAvatarImages(ctx)
	if err != nil {
		return "", &AssetError{Message: "list avatar images", Cause: err}
	}

	fallback, ok := findByTitle(images, s.fallbackTitle)
	if !ok {
		return "", &AssetError{Message: fmt.Sprintf("fallback image %q not found", s.fallbackTitle)}
	}

	s.mu.Lock()
	idx := s.rng.Intn(len(images))
	s.mu.Unlock()

	if url := strings.TrimSpace(images[idx].URL); url != "" {
		return url, nil
	}
	return fallback.URL, nil
}

func findByTitle(images []db.AvatarImage, title string) (db.AvatarImage, bool) {
	for _, img := range images {
		if strings.EqualFold(strings.TrimSpace(img.Title), title) && strings.TrimSpace(img.URL) != "" {
			return img, true
		}
	}
	return db.AvatarImage{}, false
}
