package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxImagesPerPost caps images attached to one post, across creation and later additions.
const MaxImagesPerPost = 5

type PostStore interface {
	CreatePost(ctx context.Context, post *Post) (*Post, error)
	GetPost(ctx context.Context, postID int64) (*Post, error)
	PostExists(ctx context.Context, postID int64) (bool, error)
	GetImageCount(ctx context.Context, postID int64) (int, error)
	// AppendImages stores at most the remaining quota and returns every image of the post, oldest first.
	AppendImages(ctx context.Context, postID int64, images []PostImage) ([]PostImage, error)
	DeletePost(ctx context.Context, postID int64) error

	Close() error
}

var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrCheckViolation  = errors.New("check constraint violation")
	ErrInvalidKey      = errors.New("invalid storage key")
)

type Post struct {
	ID        int64       `db:"id" json:"id"`
	UserID    int64       `db:"user_id" json:"userId"`
	Title     string      `db:"title" json:"title"`
	Content   string      `db:"content" json:"content"`
	ImageURL  *string     `db:"image_url" json:"imageUrl,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time  `db:"updated_at" json:"updatedAt,omitempty"`
	DeletedAt *time.Time  `db:"deleted_at" json:"-"`
	Images    []PostImage `db:"-" json:"images"`
}

type PostImage struct {
	ID           int64      `db:"id" json:"id"`
	PostID       int64      `db:"post_id" json:"postId"`
	ImageURL     string     `db:"image_url" json:"imageUrl"`
	ThumbnailURL *string    `db:"thumbnail_url" json:"thumbnailUrl,omitempty"`
	PreviewURL   *string    `db:"preview_url" json:"previewUrl,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

func NewPostImage(imageURL string, thumbnailURL, previewURL *string) (PostImage, error) {
	if strings.TrimSpace(imageURL) == "" {
		return PostImage{}, fmt.Errorf("%w: image url is required", ErrCheckViolation)
	}
	return PostImage{ImageURL: imageURL, ThumbnailURL: thumbnailURL, PreviewURL: previewURL}, nil
}

// NewPost keeps at most MaxImagesPerPost images; the rest are dropped silently.
func NewPost(userID int64, title, content string, images []PostImage) *Post {
	if len(images) > MaxImagesPerPost {
		images = images[:MaxImagesPerPost]
	}
	return &Post{UserID: userID, Title: title, Content: content, Images: images}
}
