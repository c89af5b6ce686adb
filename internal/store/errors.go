package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique
// constraint. The specific variants wrap it so callers can match either
// the general or the specific failure with errors.Is.
var (
	ErrDuplicate         = errors.New("duplicate record")
	ErrDuplicateEmail    = fmt.Errorf("%w: email", ErrDuplicate)
	ErrDuplicateUsername = fmt.Errorf("%w: username", ErrDuplicate)
	ErrDuplicateSlug     = fmt.Errorf("%w: slug", ErrDuplicate)
)

const pqUniqueViolation = "23505"

// mapUniqueViolation translates a Postgres unique-violation error to the
// matching duplicate sentinel based on the violated constraint. Uniqueness
// is enforced by the database rather than by pre-checks, so this mapping
// is the single place concurrent duplicate writes are detected.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_key":
		return ErrDuplicateEmail
	case "users_username_key":
		return ErrDuplicateUsername
	case "posts_slug_key":
		return ErrDuplicateSlug
	default:
		return ErrDuplicate
	}
}
