package services

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/inkwell-blog/apiserver/internal/password"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memoryUserRepo is an in-memory UserRepository that enforces the same
// uniqueness rules as the Postgres schema.
type memoryUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (r *memoryUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memoryUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memoryUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
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
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryUserRepo) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && existing.Username == user.Username {
			return types.User{}, store.ErrDuplicateUsername
		}
	}
	stored := r.users[user.ID]
	stored.Name = user.Name
	stored.Username = user.Username
	stored.Bio = user.Bio
	stored.Avatar = user.Avatar
	r.users[user.ID] = stored
	return stored, nil
}

func (r *memoryUserRepo) UpdatePassword(_ context.Context, id int, passwordHash string) error {
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

func (r *memoryUserRepo) UpdateRole(_ context.Context, id int, role string) error {
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

func (r *memoryUserRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func newTestUserService() (*UserService, *memoryUserRepo) {
	repo := newMemoryUserRepo()
	return NewUserService(repo, password.NewHasher(bcrypt.MinCost)), repo
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice", "a@x.com", "Secret1!", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, types.RoleUser, user.Role)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "Secret1!", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "a@x.com", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterMissingFields(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	cases := []struct{ name, email, pw string }{
		{"", "a@x.com", "pw"},
		{"Alice", "", "pw"},
		{"Alice", "a@x.com", ""},
	}
	for _, tc := range cases {
		_, err := svc.Register(ctx, tc.name, tc.email, tc.pw, "")
		assert.ErrorIs(t, err, ErrMissingFields)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, repo := newTestUserService()
	ctx := context.Background()

	first, err := svc.Register(ctx, "Alice", "a@x.com", "Secret1!", "alice")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other Alice", "a@x.com", "Other1!", "otheralice")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	// The existing record is untouched.
	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
	assert.Equal(t, "alice", stored.Username)
}

func TestRegisterDerivesUsername(t *testing.T) {
	svc, _ := newTestUserService()

	user, err := svc.Register(context.Background(), "Jane Doe!", "jane@x.com", "Secret1!", "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^janedoe\d{4}$`), user.Username)
}

func TestRegisterTruncatesDerivedUsername(t *testing.T) {
	svc, _ := newTestUserService()

	user, err := svc.Register(context.Background(), "A Very Long Name Indeed Truly", "long@x.com", "Secret1!", "")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^averylongnamein\d{4}$`), user.Username)
	assert.LessOrEqual(t, len(user.Username), usernameBaseMax+4)
}

func TestRegisterConcurrentSameName(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, "Jane Doe", emailFor(i), "Secret1!", "")
		}(i)
	}
	wg.Wait()

	// Derived suffixes are random; with bounded retries every
	// registration should land on a distinct username.
	for i, err := range errs {
		assert.NoError(t, err, "registration %d", i)
	}
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		user, err := svc.GetByEmail(ctx, emailFor(i))
		require.NoError(t, err)
		assert.False(t, seen[user.Username], "username %q reused", user.Username)
		seen[user.Username] = true
	}
}

func emailFor(i int) string {
	return string(rune('a'+i)) + "@concurrent.test"
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice", "a@x.com", "Secret1!", "alice")
	require.NoError(t, err)

	bio := "writes about Go"
	name := "Alice Cooper"
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)
	assert.Equal(t, "writes about Go", updated.Bio)
	assert.Equal(t, "alice", updated.Username, "username not in the update is unchanged")
}

func TestUpdateProfileUsernameCollision(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "Alice", "a@x.com", "Secret1!", "alice")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "Bob", "b@x.com", "Secret1!", "bob")
	require.NoError(t, err)

	taken := "alice"
	_, err = svc.UpdateProfile(ctx, bob.ID, ProfileUpdate{Username: &taken})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice", "a@x.com", "Secret1!", "alice")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong", "New1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "Secret1!", "New1!"))

	_, err = svc.Authenticate(ctx, "a@x.com", "Secret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "a@x.com", "New1!")
	assert.NoError(t, err)
}

func TestPromote(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice", "a@x.com", "Secret1!", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, user.Role)

	require.NoError(t, svc.Promote(ctx, "a@x.com"))

	promoted, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, promoted.Role)

	assert.ErrorIs(t, svc.Promote(ctx, "nobody@x.com"), store.ErrNotFound)
}
