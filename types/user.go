package types

import "time"

// Roles a user can hold. Role changes never happen through the
// self-service profile endpoints; only the administrative CLI path
// can promote a user.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Username is the unique handle shown on posts. When omitted at
	// registration it is derived from Name.
	Username string `json:"username" db:"username"`

	// Email is the user's email address and login key.
	Email string `json:"email" db:"email"`

	// Avatar is an optional URL or media key for the profile picture.
	Avatar string `json:"avatar" db:"avatar"`

	// Bio is optional free-form profile text.
	Bio string `json:"bio" db:"bio"`

	// Role indicates the user's authorization level
	// within the system ("user" or "admin").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
