package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/apiserver/internal/password"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/internal/token"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeUserRepo is an in-memory UserRepository that enforces the same
// uniqueness rules as the Postgres schema.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicateEmail
		}
		if existing.Username == user.Username {
			return types.User{}, store.ErrDuplicateUsername
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Username == user.Username {
			return types.User{}, store.ErrDuplicateUsername
		}
	}
	stored.Name = user.Name
	stored.Username = user.Username
	stored.Avatar = user.Avatar
	stored.Bio = user.Bio
	stored.UpdatedAt = time.Now()
	r.users[user.ID] = stored
	return stored, nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id int, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) UpdateRole(_ context.Context, id int, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	r.users[id] = user
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type authTestEnv struct {
	router chi.Router
	repo   *fakeUserRepo
	users  *services.UserService
	issuer *token.Issuer
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()

	repo := newFakeUserRepo()
	users := services.NewUserService(repo, password.NewHasher(bcrypt.MinCost))
	issuer := token.NewIssuer("test-secret", time.Hour)

	logger := zerolog.Nop()
	auth := NewAuthMiddleware(users, issuer, logger)
	handler := NewAuthHandler(users, issuer, nil, logger)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, handler, auth)
	})

	return &authTestEnv{router: router, repo: repo, users: users, issuer: issuer}
}

func (env *authTestEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeAuthResponse(t *testing.T, rec *httptest.ResponseRecorder) AuthResponse {
	t.Helper()
	var resp AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestRegisterLoginMe(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Password: "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeAuthResponse(t, rec)
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "Jane Doe", created.User.Name)
	assert.Regexp(t, `^janedoe\d{4}$`, created.User.Username)
	assert.Equal(t, types.RoleUser, created.User.Role)

	// The registration token is immediately usable.
	rec = env.do(t, http.MethodGet, "/auth/me", created.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, created.User.ID, me.ID)
	assert.Equal(t, "jane@example.com", me.Email)

	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "jane@example.com",
		Password: "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeAuthResponse(t, rec).Token)
}

func TestRegisterValidation(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Nameless", Email: "", Password: "secret",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newAuthTestEnv(t)

	first := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Jane", Email: "jane@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Other Jane", Email: "jane@example.com", Password: "secret2",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, services.ErrDuplicateIdentity.Error(), decodeErrorResponse(t, second))
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Jane", Email: "jane@example.com", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Wrong password and unknown email report the same message.
	wrongPassword := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "jane@example.com", Password: "nope",
	})
	unknownEmail := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "nobody@example.com", Password: "secret1",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, decodeErrorResponse(t, wrongPassword), decodeErrorResponse(t, unknownEmail))
}

func TestRequireAuthRejections(t *testing.T) {
	env := newAuthTestEnv(t)

	cases := []struct {
		name    string
		bearer  func(t *testing.T) string
		wantMsg string
	}{
		{
			name:    "no token",
			bearer:  func(*testing.T) string { return "" },
			wantMsg: msgMissingToken,
		},
		{
			name: "expired token",
			bearer: func(t *testing.T) string {
				expired := token.NewIssuer("test-secret", -time.Minute)
				signed, err := expired.Issue(1)
				require.NoError(t, err)
				return signed
			},
			wantMsg: msgTokenExpired,
		},
		{
			name: "wrong secret",
			bearer: func(t *testing.T) string {
				forged := token.NewIssuer("other-secret", time.Hour)
				signed, err := forged.Issue(1)
				require.NoError(t, err)
				return signed
			},
			wantMsg: msgTokenInvalid,
		},
		{
			name:    "garbage token",
			bearer:  func(*testing.T) string { return "not.a.jwt" },
			wantMsg: msgTokenInvalid,
		},
		{
			name: "valid token for deleted user",
			bearer: func(t *testing.T) string {
				signed, err := env.issuer.Issue(999)
				require.NoError(t, err)
				return signed
			},
			wantMsg: msgUserNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/auth/me", tc.bearer(t), nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.wantMsg, decodeErrorResponse(t, rec))
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	env := newAuthTestEnv(t)
	ctx := context.Background()

	member, err := env.users.Register(ctx, "Member", "member@example.com", "secret1", "member")
	require.NoError(t, err)
	admin, err := env.users.Register(ctx, "Admin", "admin@example.com", "secret2", "admin")
	require.NoError(t, err)
	require.NoError(t, env.users.Promote(ctx, admin.Email))

	auth := NewAuthMiddleware(env.users, env.issuer, zerolog.Nop())
	router := chi.NewRouter()
	router.With(auth.RequireAuth, auth.RequireAdmin).Get("/admin-only", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	check := func(userID int) *httptest.ResponseRecorder {
		signed, err := env.issuer.Issue(userID)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", signed))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	memberRec := check(member.ID)
	assert.Equal(t, http.StatusForbidden, memberRec.Code)
	assert.Equal(t, msgAdminRequired, decodeErrorResponse(t, memberRec))

	assert.Equal(t, http.StatusOK, check(admin.ID).Code)
}

func TestUpdateProfile(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Jane", Email: "jane@example.com", Password: "secret1", Username: "jane",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeAuthResponse(t, rec)

	bio := "writes about databases"
	rec = env.do(t, http.MethodPut, "/auth/profile", session.Token, UpdateProfileRequest{Bio: &bio})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated types.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, bio, updated.Bio)
	assert.Equal(t, "jane", updated.Username, "unset fields keep their value")

	// Taking another user's username is a conflict.
	other := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Other", Email: "other@example.com", Password: "secret2", Username: "other",
	})
	require.Equal(t, http.StatusCreated, other.Code)

	taken := "other"
	rec = env.do(t, http.MethodPut, "/auth/profile", session.Token, UpdateProfileRequest{Username: &taken})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChangePassword(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Name: "Jane", Email: "jane@example.com", Password: "original",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeAuthResponse(t, rec)

	wrong := env.do(t, http.MethodPut, "/auth/change-password", session.Token, ChangePasswordRequest{
		CurrentPassword: "guess", NewPassword: "updated",
	})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	ok := env.do(t, http.MethodPut, "/auth/change-password", session.Token, ChangePasswordRequest{
		CurrentPassword: "original", NewPassword: "updated",
	})
	require.Equal(t, http.StatusNoContent, ok.Code)

	// Old password no longer logs in, the new one does.
	old := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "jane@example.com", Password: "original",
	})
	assert.Equal(t, http.StatusUnauthorized, old.Code)

	fresh := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: "jane@example.com", Password: "updated",
	})
	assert.Equal(t, http.StatusOK, fresh.Code)
}
