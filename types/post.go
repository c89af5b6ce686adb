package types

import "time"

// Post statuses. Only published posts appear in public listings.
const (
	PostStatusDraft     = "draft"
	PostStatusPublished = "published"
)

// Post represents a blog post authored by a user.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// AuthorID references the user who created the post.
	AuthorID int `json:"author_id" db:"author_id"`

	// Title is the human-readable headline of the post.
	Title string `json:"title" db:"title"`

	// Slug is the unique URL-safe identifier derived from the title.
	Slug string `json:"slug" db:"slug"`

	// Content is the post body.
	Content string `json:"content" db:"content"`

	// Image is an optional media key or URL for the cover image.
	Image string `json:"image" db:"image"`

	// Status is either "draft" or "published".
	Status string `json:"status" db:"status"`

	// Tags are free-form labels used for filtering.
	Tags []string `json:"tags" db:"tags"`

	// Views counts public reads of the post.
	Views int `json:"views" db:"views"`

	// CreatedAt is the timestamp at which the post was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the post.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
