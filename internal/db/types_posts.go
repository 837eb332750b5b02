package db

import (
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit is used when a list call does not specify a limit.
const DefaultListLimit = 50

// Post is one generated video post. A post is either provisional
// (IsPublished false, no ExternalPostID, no PublishedAt) or published with all
// three set.
type Post struct {
	ID               uuid.UUID  `json:"id"`
	Script           string     `json:"script"`
	AnnouncementText string     `json:"announcement_text"`
	NewsContext      *string    `json:"news_context,omitempty"`
	ImageURL         string     `json:"image_url,omitempty"`
	MediaURL         string     `json:"media_url,omitempty"`
	IsPublished      bool       `json:"is_published"`
	ExternalPostID   *string    `json:"external_post_id,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Provisional reports whether the post has not been published yet.
func (p *Post) Provisional() bool {
	return !p.IsPublished
}

// PublishedPostInput is the data written once a publish call has succeeded.
type PublishedPostInput struct {
	Script           string
	AnnouncementText string
	NewsContext      *string
	ImageURL         string
	MediaURL         string
	ExternalPostID   string
}

// DraftPostInput is the data written for a provisional post.
type DraftPostInput struct {
	Script           string
	AnnouncementText string
	NewsContext      *string
}

// MarkPublishedInput completes a provisional post.
type MarkPublishedInput struct {
	ImageURL       string
	MediaURL       string
	ExternalPostID string
}

// PostFilters holds optional filters for listing posts
type PostFilters struct {
	Published *bool
	Limit     int
}

// AvatarImage is a still image that can be animated.
type AvatarImage struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}
