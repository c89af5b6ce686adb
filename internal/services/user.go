package services

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/inkwell-blog/apiserver/internal/password"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/types"
)

const (
	usernameBaseMax      = 15
	derivedUsernameTries = 3
)

var (
	// ErrDuplicateIdentity is returned when a registration or profile
	// update collides with an existing email or username.
	ErrDuplicateIdentity = errors.New("email or username already in use")

	// ErrInvalidCredentials is returned for both an unknown email and a
	// wrong password, so callers cannot tell which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingFields is returned when a required registration field is
	// empty.
	ErrMissingFields = errors.New("missing required fields")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, id int, passwordHash string) error
	UpdateRole(ctx context.Context, id int, role string) error
	Delete(ctx context.Context, id int) error
}

// ProfileUpdate carries the self-service mutable fields. Nil pointers
// leave the stored value unchanged. Role and email are not here on
// purpose; neither is mutable through this path.
type ProfileUpdate struct {
	Name     *string
	Username *string
	Bio      *string
	Avatar   *string
}

// UserService encapsulates credential and profile use-cases.
type UserService struct {
	repo   UserRepository
	hasher *password.Hasher
}

func NewUserService(repo UserRepository, hasher *password.Hasher) *UserService {
	return &UserService{repo: repo, hasher: hasher}
}

// Register creates a new account. When username is empty it is derived
// from the name: lowercased, non-alphanumerics stripped, truncated to
// 15 characters, suffixed with a random 4-digit disambiguator. The
// database's unique constraints arbitrate collisions; a collision on a
// derived username is retried with a fresh suffix.
func (s *UserService) Register(ctx context.Context, name, email, plaintext, username string) (types.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if name == "" || email == "" || plaintext == "" {
		return types.User{}, ErrMissingFields
	}

	hash, err := s.hasher.Hash(ctx, plaintext)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	derived := username == ""
	tries := 1
	if derived {
		tries = derivedUsernameTries
	}

	for attempt := 0; attempt < tries; attempt++ {
		if derived {
			username = deriveUsername(name)
		}

		user, err := s.repo.Create(ctx, types.User{
			Name:         name,
			Username:     username,
			Email:        email,
			Role:         types.RoleUser,
			PasswordHash: hash,
		})
		if err == nil {
			return user, nil
		}
		if derived && errors.Is(err, store.ErrDuplicateUsername) {
			continue
		}
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateIdentity
		}
		return types.User{}, err
	}

	return types.User{}, ErrDuplicateIdentity
}

// Authenticate verifies an email/password pair and returns the matching
// user. The password is verified even when the email is unknown so the
// two failure modes take comparable time.
func (s *UserService) Authenticate(ctx context.Context, email, plaintext string) (types.User, error) {
	email = strings.TrimSpace(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = s.hasher.Verify(ctx, dummyHash, plaintext)
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}

	ok, err := s.hasher.Verify(ctx, user.PasswordHash, plaintext)
	if err != nil {
		return types.User{}, err
	}
	if !ok {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// UpdateProfile applies the given partial update to the stored record.
// A username collision with another record surfaces as
// ErrDuplicateIdentity.
func (s *UserService) UpdateProfile(ctx context.Context, id int, update ProfileUpdate) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	if update.Name != nil && strings.TrimSpace(*update.Name) != "" {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if update.Username != nil && strings.TrimSpace(*update.Username) != "" {
		user.Username = strings.TrimSpace(*update.Username)
	}
	if update.Bio != nil {
		user.Bio = *update.Bio
	}
	if update.Avatar != nil {
		user.Avatar = *update.Avatar
	}

	updated, err := s.repo.UpdateProfile(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateIdentity
		}
		return types.User{}, err
	}
	return updated, nil
}

// ChangePassword re-hashes and persists the new password after the
// current one verifies. The hash is recomputed only here and at
// registration, never on other saves.
func (s *UserService) ChangePassword(ctx context.Context, id int, current, next string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, user.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if next == "" {
		return ErrMissingFields
	}

	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, hash)
}

// Promote grants the admin role. Only the administrative CLI reaches
// this; no HTTP endpoint can change roles.
func (s *UserService) Promote(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	return s.repo.UpdateRole(ctx, user.ID, types.RoleAdmin)
}

// dummyHash is a valid bcrypt hash of an unguessable value, used to
// equalize timing when the email lookup misses.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func deriveUsername(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
		if b.Len() >= usernameBaseMax {
			break
		}
	}
	return fmt.Sprintf("%s%d", b.String(), randomSuffix())
}

// randomSuffix returns a number in [1000, 9999].
func randomSuffix() int {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1000
	}
	return 1000 + int(binary.BigEndian.Uint64(buf[:])%9000)
}
