package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/inkwell-blog/apiserver/types"
)

// PostFilter narrows a published-post listing.
type PostFilter struct {
	Tag    string
	Search string
}

// PostRepository handles persistence for posts.
type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{db: db}
}

const postColumns = "id, author_id, title, slug, content, image, status, tags, views, created_at, updated_at"

func scanPostRow(scan func(dest ...any) error) (types.Post, error) {
	var post types.Post
	var tagsJSON []byte
	err := scan(
		&post.ID,
		&post.AuthorID,
		&post.Title,
		&post.Slug,
		&post.Content,
		&post.Image,
		&post.Status,
		&tagsJSON,
		&post.Views,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Post{}, ErrNotFound
		}
		return types.Post{}, err
	}
	_ = json.Unmarshal(tagsJSON, &post.Tags)
	return post, nil
}

// ListPublished returns published posts, newest first, with the total
// count for pagination. Tag and search filters are optional; empty
// strings match everything.
func (r *PostRepository) ListPublished(ctx context.Context, offset, limit int, filter PostFilter) ([]types.Post, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	const countQuery = `
		SELECT COUNT(1)
		FROM posts
		WHERE status = 'published'
			AND ($1 = '' OR tags @> to_jsonb(ARRAY[$1]))
			AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR content ILIKE '%' || $2 || '%')`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, filter.Tag, filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = 'published'
			AND ($1 = '' OR tags @> to_jsonb(ARRAY[$1]))
			AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR content ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, filter.Tag, filter.Search, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	posts := make([]types.Post, 0, limit)
	for rows.Next() {
		post, err := scanPostRow(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return posts, total, nil
}

// ListByAuthor returns all posts by one author, drafts included.
func (r *PostRepository) ListByAuthor(ctx context.Context, authorID int) ([]types.Post, error) {
	const query = `
		SELECT ` + postColumns + `
		FROM posts
		WHERE author_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []types.Post
	for rows.Next() {
		post, err := scanPostRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *PostRepository) GetByID(ctx context.Context, id int) (types.Post, error) {
	const query = `
		SELECT ` + postColumns + `
		FROM posts
		WHERE id = $1`
	return scanPostRow(r.db.QueryRowContext(ctx, query, id).Scan)
}

func (r *PostRepository) GetBySlug(ctx context.Context, slug string) (types.Post, error) {
	const query = `
		SELECT ` + postColumns + `
		FROM posts
		WHERE slug = $1 AND status = 'published'`
	return scanPostRow(r.db.QueryRowContext(ctx, query, slug).Scan)
}

func (r *PostRepository) Create(ctx context.Context, post types.Post) (types.Post, error) {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	tagsJSON, err := json.Marshal(post.Tags)
	if err != nil {
		return types.Post{}, err
	}

	const query = `
		INSERT INTO posts (author_id, title, slug, content, image, status, tags, views, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		post.AuthorID,
		post.Title,
		post.Slug,
		post.Content,
		post.Image,
		post.Status,
		tagsJSON,
		post.Views,
		post.CreatedAt,
		post.UpdatedAt,
	).Scan(&post.ID); err != nil {
		return types.Post{}, mapUniqueViolation(err)
	}
	return post, nil
}

func (r *PostRepository) Update(ctx context.Context, post types.Post) (types.Post, error) {
	post.UpdatedAt = time.Now()

	tagsJSON, err := json.Marshal(post.Tags)
	if err != nil {
		return types.Post{}, err
	}

	const query = `
		UPDATE posts
		SET title = $1,
			slug = $2,
			content = $3,
			image = $4,
			status = $5,
			tags = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		post.Title,
		post.Slug,
		post.Content,
		post.Image,
		post.Status,
		tagsJSON,
		post.UpdatedAt,
		post.ID,
	)
	if err != nil {
		return types.Post{}, mapUniqueViolation(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Post{}, err
	}
	if affected == 0 {
		return types.Post{}, ErrNotFound
	}
	return post, nil
}

// IncrementViews bumps the view counter atomically in the database so
// concurrent reads never lose increments.
func (r *PostRepository) IncrementViews(ctx context.Context, id int) error {
	const query = `UPDATE posts SET views = views + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM posts WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
