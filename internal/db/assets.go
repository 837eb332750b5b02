package db

import (
	"context"
	"fmt"
)

// ListAvatarImages returns every avatar image ordered by id.
func (db *DB) ListAvatarImages(ctx context.Context) ([]AvatarImage, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, title, url FROM avatar_images ORDER BY id`)
	if err != nil {
		return nil, &StoreError{Op: "list avatar images", Cause: err}
	}
	defer rows.Close()

	var images []AvatarImage
	for rows.Next() {
		var img AvatarImage
		if err := rows.Scan(&img.ID, &img.Title, &img.URL); err != nil {
			return nil, fmt.Errorf("failed to scan avatar image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list avatar images", Cause: err}
	}
	return images, nil
}

// UpsertAvatarImage adds an image or updates the URL of an existing title.
func (db *DB) UpsertAvatarImage(ctx context.Context, title, url string) (*AvatarImage, error) {
	var img AvatarImage
	err := db.pool.QueryRow(ctx,
		`INSERT INTO avatar_images (title, url) VALUES ($1, $2)
		 ON CONFLICT (title) DO UPDATE SET url = EXCLUDED.url
		 RETURNING id, title, url`,
		title, url,
	).Scan(&img.ID, &img.Title, &img.URL)
	if err != nil {
		return nil, &StoreError{Op: "upsert avatar image", Cause: err}
	}
	return &img, nil
}
