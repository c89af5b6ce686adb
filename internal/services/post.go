package services

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/types"
)

var (
	// ErrNotPostAuthor is returned when a caller who is neither the
	// author nor an admin tries to modify a post.
	ErrNotPostAuthor = errors.New("not the post author")

	// ErrDuplicateSlug is returned when a post title collides with an
	// existing slug.
	ErrDuplicateSlug = errors.New("a post with this title already exists")
)

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	ListPublished(ctx context.Context, offset, limit int, filter store.PostFilter) ([]types.Post, int, error)
	ListByAuthor(ctx context.Context, authorID int) ([]types.Post, error)
	GetByID(ctx context.Context, id int) (types.Post, error)
	GetBySlug(ctx context.Context, slug string) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
	IncrementViews(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

// PostService encapsulates blog post use-cases.
type PostService struct {
	repo PostRepository
}

func NewPostService(repo PostRepository) *PostService {
	return &PostService{repo: repo}
}

func (s *PostService) ListPublished(ctx context.Context, offset, limit int, filter store.PostFilter) ([]types.Post, int, error) {
	return s.repo.ListPublished(ctx, offset, limit, filter)
}

func (s *PostService) ListByAuthor(ctx context.Context, authorID int) ([]types.Post, error) {
	return s.repo.ListByAuthor(ctx, authorID)
}

// GetBySlug fetches a published post and bumps its view counter.
func (s *PostService) GetBySlug(ctx context.Context, slug string) (types.Post, error) {
	post, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return types.Post{}, err
	}
	if err := s.repo.IncrementViews(ctx, post.ID); err != nil {
		return types.Post{}, err
	}
	post.Views++
	return post, nil
}

// Create inserts a post for the given author. The slug is derived from
// the title; a collision surfaces as ErrDuplicateSlug.
func (s *PostService) Create(ctx context.Context, author types.User, post types.Post) (types.Post, error) {
	post.AuthorID = author.ID
	post.Slug = slugify(post.Title)
	if post.Status == "" {
		post.Status = types.PostStatusDraft
	}

	created, err := s.repo.Create(ctx, post)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			return types.Post{}, ErrDuplicateSlug
		}
		return types.Post{}, err
	}
	return created, nil
}

// Update applies changes to an existing post. Only the author or an
// admin may modify it.
func (s *PostService) Update(ctx context.Context, actor types.User, post types.Post) (types.Post, error) {
	existing, err := s.repo.GetByID(ctx, post.ID)
	if err != nil {
		return types.Post{}, err
	}
	if existing.AuthorID != actor.ID && !actor.IsAdmin() {
		return types.Post{}, ErrNotPostAuthor
	}

	existing.Title = post.Title
	existing.Slug = slugify(post.Title)
	existing.Content = post.Content
	existing.Image = post.Image
	existing.Tags = post.Tags
	if post.Status != "" {
		existing.Status = post.Status
	}

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			return types.Post{}, ErrDuplicateSlug
		}
		return types.Post{}, err
	}
	return updated, nil
}

// Delete removes a post. Only the author or an admin may delete it.
func (s *PostService) Delete(ctx context.Context, actor types.User, id int) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != actor.ID && !actor.IsAdmin() {
		return ErrNotPostAuthor
	}
	return s.repo.Delete(ctx, id)
}

// slugify turns a title into a URL-safe slug: lowercase, alphanumeric
// runs joined by single hyphens.
func slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z' || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
