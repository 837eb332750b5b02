package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const postColumns = `id, script, tweet_text, news_context, image_url, media_url,
	is_published, twitter_post_id, published_at, created_at`

// InsertPublishedPost writes a post that has already been published.
func (db *DB) InsertPublishedPost(ctx context.Context, input *PublishedPostInput) (*Post, error) {
	if strings.TrimSpace(input.ExternalPostID) == "" {
		return nil, &StoreError{Op: "insert published post", Message: "external post id is required"}
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO video_posts (script, tweet_text, news_context, image_url, media_url,
			is_published, twitter_post_id, published_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, NOW())
		 RETURNING `+postColumns,
		input.Script, input.AnnouncementText, input.NewsContext, input.ImageURL, input.MediaURL, input.ExternalPostID,
	)
	post, err := scanPost(row)
	if err != nil {
		return nil, &StoreError{Op: "insert published post", Cause: err}
	}
	return post, nil
}

// InsertDraftPost writes a provisional post.
func (db *DB) InsertDraftPost(ctx context.Context, input *DraftPostInput) (*Post, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO video_posts (script, tweet_text, news_context, is_published)
		 VALUES ($1, $2, $3, FALSE)
		 RETURNING `+postColumns,
		input.Script, input.AnnouncementText, input.NewsContext,
	)
	post, err := scanPost(row)
	if err != nil {
		return nil, &StoreError{Op: "insert draft post", Cause: err}
	}
	return post, nil
}

// MarkPublished flips a provisional post to published. Posts that are already
// published, or do not exist, are left untouched and reported as errors.
func (db *DB) MarkPublished(ctx context.Context, id uuid.UUID, input *MarkPublishedInput) (*Post, error) {
	if strings.TrimSpace(input.ExternalPostID) == "" {
		return nil, &StoreError{Op: "mark published", Message: "external post id is required"}
	}

	row := db.pool.QueryRow(ctx,
		`UPDATE video_posts
		 SET is_published = TRUE,
		     twitter_post_id = $2,
		     published_at = NOW(),
		     image_url = COALESCE(NULLIF($3, ''), image_url),
		     media_url = COALESCE(NULLIF($4, ''), media_url)
		 WHERE id = $1 AND NOT is_published
		 RETURNING `+postColumns,
		id, input.ExternalPostID, input.ImageURL, input.MediaURL,
	)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &StoreError{Op: "mark published", Message: fmt.Sprintf("post %s is not provisional or does not exist", id)}
	}
	if err != nil {
		return nil, &StoreError{Op: "mark published", Cause: err}
	}
	return post, nil
}

// RecentPublishedPosts returns the newest published posts first. Drafts are
// never included.
func (db *DB) RecentPublishedPosts(ctx context.Context, limit int) ([]Post, error) {
	published := true
	posts, err := db.ListPosts(ctx, PostFilters{Published: &published, Limit: limit})
	if err != nil {
		return nil, &StoreError{Op: "recent published posts", Cause: err}
	}
	return posts, nil
}

// RecentPublishedScripts returns the scripts of the newest published posts.
func (db *DB) RecentPublishedScripts(ctx context.Context, limit int) ([]string, error) {
	posts, err := db.RecentPublishedPosts(ctx, limit)
	if err != nil {
		return nil, err
	}
	scripts := make([]string, 0, len(posts))
	for _, p := range posts {
		scripts = append(scripts, p.Script)
	}
	return scripts, nil
}

// GetPost retrieves a post by ID, returning nil when it does not exist.
func (db *DB) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM video_posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &StoreError{Op: "get post", Cause: err}
	}
	return post, nil
}

// ListPosts retrieves posts with optional filters, newest first.
func (db *DB) ListPosts(ctx context.Context, filters PostFilters) ([]Post, error) {
	query, args := buildListPostsQuery(filters)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

func buildListPostsQuery(filters PostFilters) (string, []any) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultListLimit
	}

	query := `SELECT ` + postColumns + ` FROM video_posts WHERE 1=1`
	args := []any{}
	argNum := 1

	order := "created_at DESC"
	if filters.Published != nil {
		query += fmt.Sprintf(" AND is_published = $%d", argNum)
		args = append(args, *filters.Published)
		argNum++
		if *filters.Published {
			order = "published_at DESC, created_at DESC"
		}
	}

	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d", order, argNum)
	args = append(args, filters.Limit)
	return query, args
}

func scanPost(row pgx.Row) (*Post, error) {
	var p Post
	err := row.Scan(
		&p.ID, &p.Script, &p.AnnouncementText, &p.NewsContext, &p.ImageURL, &p.MediaURL,
		&p.IsPublished, &p.ExternalPostID, &p.PublishedAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
