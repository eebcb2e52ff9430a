package sqlite

import (
	"context"
	"fmt"

	"postmedia/internal/storage"

	"github.com/jmoiron/sqlx"
)

// CreatePost inserts the post and its images in one transaction; images beyond the per-post cap are dropped.
func (s *Store) CreatePost(ctx context.Context, post *storage.Post) (*storage.Post, error) {
	var created storage.Post

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `INSERT INTO posts (user_id, title, content)
			VALUES (?, ?, ?)
			RETURNING id`

		var id int64
		if err := tx.GetContext(ctx, &id, query, post.UserID, post.Title, post.Content); err != nil {
			return fmt.Errorf("cannot create post: %w", mapSqlError(err))
		}

		images, err := appendImagesTx(ctx, tx, id, post.Images)
		if err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &created, `SELECT * FROM posts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("cannot read back post %d: %w", id, mapSqlError(err))
		}
		created.Images = images
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

func (s *Store) GetPost(ctx context.Context, postID int64) (*storage.Post, error) {
	query := `SELECT * FROM posts
		WHERE id = ? AND deleted_at IS NULL
		LIMIT 1`

	var post storage.Post
	if err := s.db.GetContext(ctx, &post, query, postID); err != nil {
		return nil, fmt.Errorf("cannot find post id %d: %w", postID, mapSqlError(err))
	}

	images, err := selectImages(ctx, s.db, postID)
	if err != nil {
		return nil, err
	}
	post.Images = images

	return &post, nil
}

func (s *Store) PostExists(ctx context.Context, postID int64) (bool, error) {
	return postExists(ctx, s.db, postID)
}

func (s *Store) GetImageCount(ctx context.Context, postID int64) (int, error) {
	return imageCount(ctx, s.db, postID)
}

// AppendImages re-checks the quota inside the transaction, so concurrent appends cannot push a post past the cap.
func (s *Store) AppendImages(ctx context.Context, postID int64, images []storage.PostImage) ([]storage.PostImage, error) {
	var all []storage.PostImage

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		all, err = appendImagesTx(ctx, tx, postID, images)
		return err
	})
	if err != nil {
		return nil, err
	}

	return all, nil
}

// DeletePost soft-deletes the post together with its images.
func (s *Store) DeletePost(ctx context.Context, postID int64) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE posts SET deleted_at = CURRENT_TIMESTAMP
			WHERE id = ? AND deleted_at IS NULL`, postID)
		if err != nil {
			return fmt.Errorf("could not delete post: %w", mapSqlError(err))
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("could not get rows affected: %w", mapSqlError(err))
		}
		if rows == 0 {
			return storage.ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `UPDATE post_images SET deleted_at = CURRENT_TIMESTAMP
			WHERE post_id = ? AND deleted_at IS NULL`, postID); err != nil {
			return fmt.Errorf("could not delete post images: %w", mapSqlError(err))
		}
		return nil
	})
}

func appendImagesTx(ctx context.Context, tx *sqlx.Tx, postID int64, images []storage.PostImage) ([]storage.PostImage, error) {
	exists, err := postExists(ctx, tx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("post %d: %w", postID, storage.ErrNotFound)
	}

	count, err := imageCount(ctx, tx, postID)
	if err != nil {
		return nil, err
	}

	remaining := max(0, storage.MaxImagesPerPost-count)
	images = images[:min(remaining, len(images))]

	insert := `INSERT INTO post_images (post_id, image_url, thumbnail_url, preview_url)
		VALUES (?, ?, ?, ?)`
	for _, img := range images {
		if _, err := tx.ExecContext(ctx, insert, postID, img.ImageURL, img.ThumbnailURL, img.PreviewURL); err != nil {
			return nil, fmt.Errorf("cannot attach image to post %d: %w", postID, mapSqlError(err))
		}
	}

	if len(images) > 0 {
		// the cover is the earliest attached image, not the newest
		update := `UPDATE posts SET
				image_url = (SELECT image_url FROM post_images
					WHERE post_id = ? AND deleted_at IS NULL
					ORDER BY id LIMIT 1),
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`
		if _, err := tx.ExecContext(ctx, update, postID, postID); err != nil {
			return nil, fmt.Errorf("cannot update cover of post %d: %w", postID, mapSqlError(err))
		}
	}

	return selectImages(ctx, tx, postID)
}

func postExists(ctx context.Context, q sqlx.QueryerContext, postID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM posts WHERE id = ? AND deleted_at IS NULL)`
	if err := sqlx.GetContext(ctx, q, &exists, query, postID); err != nil {
		return false, fmt.Errorf("cannot check post %d: %w", postID, mapSqlError(err))
	}
	return exists, nil
}

func imageCount(ctx context.Context, q sqlx.QueryerContext, postID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM post_images WHERE post_id = ? AND deleted_at IS NULL`
	if err := sqlx.GetContext(ctx, q, &count, query, postID); err != nil {
		return 0, fmt.Errorf("cannot count images of post %d: %w", postID, mapSqlError(err))
	}
	return count, nil
}

func selectImages(ctx context.Context, q sqlx.QueryerContext, postID int64) ([]storage.PostImage, error) {
	images := []storage.PostImage{}
	query := `SELECT * FROM post_images
		WHERE post_id = ? AND deleted_at IS NULL
		ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &images, query, postID); err != nil {
		return nil, fmt.Errorf("cannot list images of post %d: %w", postID, mapSqlError(err))
	}
	return images, nil
}
