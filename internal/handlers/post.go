package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/inkwell-blog/apiserver/internal/events"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/storage"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/rs/zerolog"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100

	maxUploadBytes = 10 << 20
	formFieldFile  = "file"
)

// PostHandler provides HTTP handlers for posts and media uploads.
type PostHandler struct {
	posts     *services.PostService
	media     *storage.MediaStore
	publisher *events.Publisher
	logger    zerolog.Logger
}

// NewPostHandler constructs a handler with the provided dependencies.
// media may be nil when no storage backend is configured; upload
// endpoints then answer 503.
func NewPostHandler(posts *services.PostService, media *storage.MediaStore, publisher *events.Publisher, logger zerolog.Logger) *PostHandler {
	return &PostHandler{
		posts:     posts,
		media:     media,
		publisher: publisher,
		logger:    logger,
	}
}

// PostRouter registers post routes on the given router.
func PostRouter(r chi.Router, handler *PostHandler, auth *AuthMiddleware) {
	r.Get("/", handler.ListPosts)
	r.With(auth.RequireAuth).Post("/", handler.CreatePost)
	r.With(auth.RequireAuth).Get("/mine", handler.ListMyPosts)
	r.Get("/{slug}", handler.GetPost)
	r.With(auth.RequireAuth).Put("/{postID}", handler.UpdatePost)
	r.With(auth.RequireAuth).Delete("/{postID}", handler.DeletePost)
}

// MediaRouter registers media upload/download routes.
func MediaRouter(r chi.Router, handler *PostHandler, auth *AuthMiddleware) {
	r.With(auth.RequireAuth).Post("/", handler.UploadMedia)
	r.Get("/{key}", handler.GetMedia)
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.PostFilter{
		Tag:    strings.TrimSpace(r.URL.Query().Get("tag")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	items, total, err := h.posts.ListPublished(r.Context(), offset, limit, filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("list posts failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	writeJSON(w, http.StatusOK, PostListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *PostHandler) ListMyPosts(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}

	items, err := h.posts.ListByAuthor(r.Context(), user.ID)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", user.ID).Msg("list own posts failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	post, err := h.posts.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		h.logger.Error().Err(err).Str("slug", slug).Msg("get post failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}

	req, err := decodePostRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.posts.Create(r.Context(), user, types.Post{
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
		Status:  req.Status,
		Tags:    req.Tags,
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateSlug) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error().Err(err).Int("user_id", user.ID).Msg("create post failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	if created.Status == types.PostStatusPublished {
		h.publisher.PostPublished(r.Context(), events.PostPublished{
			PostID:   created.ID,
			AuthorID: created.AuthorID,
			Slug:     created.Slug,
			Title:    created.Title,
			At:       time.Now(),
		})
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}

	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := decodePostRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.posts.Update(r.Context(), user, types.Post{
		ID:      id,
		Title:   req.Title,
		Content: req.Content,
		Image:   req.Image,
		Status:  req.Status,
		Tags:    req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "post not found")
		case errors.Is(err, services.ErrNotPostAuthor):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, services.ErrDuplicateSlug):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error().Err(err).Int("post_id", id).Msg("update post failed")
			writeError(w, http.StatusInternalServerError, msgServerError)
		}
		return
	}

	if updated.Status == types.PostStatusPublished {
		h.publisher.PostPublished(r.Context(), events.PostPublished{
			PostID:   updated.ID,
			AuthorID: updated.AuthorID,
			Slug:     updated.Slug,
			Title:    updated.Title,
			At:       time.Now(),
		})
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}

	id, err := parsePostID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.posts.Delete(r.Context(), user, id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "post not found")
		case errors.Is(err, services.ErrNotPostAuthor):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			h.logger.Error().Err(err).Int("post_id", id).Msg("delete post failed")
			writeError(w, http.StatusInternalServerError, msgServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadMedia stores an image in the configured object storage backend
// and returns its key.
func (h *PostHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		writeError(w, http.StatusBadRequest, "uploaded file too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "only image uploads are allowed")
		return
	}

	key := uuid.NewString() + strings.ToLower(path.Ext(header.Filename))
	if err := h.media.Put(r.Context(), key, file, header.Size, contentType); err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("media upload failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	writeJSON(w, http.StatusCreated, MediaResponse{Key: key})
}

// GetMedia streams a stored object back to the client.
func (h *PostHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}

	key := chi.URLParam(r, "key")
	reader, err := h.media.Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, "media not found")
		return
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("media stream interrupted")
	}
}

// PostUpsertRequest is the JSON payload for creating or updating posts.
type PostUpsertRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Image   string   `json:"image"`
	Status  string   `json:"status"`
	Tags    []string `json:"tags"`
}

// PostListResponse is the paginated list response payload.
type PostListResponse struct {
	Items []types.Post `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

// MediaResponse carries the storage key of an uploaded object.
type MediaResponse struct {
	Key string `json:"key"`
}

func decodePostRequest(r *http.Request) (PostUpsertRequest, error) {
	var req PostUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return PostUpsertRequest{}, errors.New("invalid request")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" {
		return PostUpsertRequest{}, errors.New("title is required")
	}
	if req.Content == "" {
		return PostUpsertRequest{}, errors.New("content is required")
	}
	switch req.Status {
	case "", types.PostStatusDraft, types.PostStatusPublished:
	default:
		return PostUpsertRequest{}, errors.New("invalid status")
	}
	return req, nil
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parsePostID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "postID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid post id")
	}
	return id, nil
}
