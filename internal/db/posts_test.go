package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildListPostsQuery_Defaults(t *testing.T) {
	query, args := buildListPostsQuery(PostFilters{})

	assert.Contains(t, query, "FROM video_posts WHERE 1=1")
	assert.Contains(t, query, "ORDER BY created_at DESC LIMIT $1")
	assert.NotContains(t, query, "is_published =")
	assert.Equal(t, []any{DefaultListLimit}, args)
}

func TestBuildListPostsQuery_Published(t *testing.T) {
	published := true
	query, args := buildListPostsQuery(PostFilters{Published: &published, Limit: 10})

	assert.Contains(t, query, "AND is_published = $1")
	assert.Contains(t, query, "ORDER BY published_at DESC, created_at DESC LIMIT $2")
	assert.Equal(t, []any{true, 10}, args)
}

func TestBuildListPostsQuery_Drafts(t *testing.T) {
	drafts := false
	query, args := buildListPostsQuery(PostFilters{Published: &drafts, Limit: 3})

	assert.Contains(t, query, "AND is_published = $1")
	assert.Contains(t, query, "ORDER BY created_at DESC LIMIT $2")
	assert.Equal(t, []any{false, 3}, args)
}

func TestPostProvisional(t *testing.T) {
	id := "123"
	assert.True(t, (&Post{}).Provisional())
	assert.False(t, (&Post{IsPublished: true, ExternalPostID: &id}).Provisional())
}
