// Package client implements the API client and its session handling:
// a persisted {identity, token} pair, route guards derived from it, and
// an HTTP client that invalidates the session on any authorization
// failure.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/inkwell-blog/apiserver/types"
)

// SessionState is the persisted session: the identity and its token are
// always written and cleared together.
type SessionState struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

// SessionManager holds the current session in memory and mirrors it to
// a state file so the session survives restarts. All methods are safe
// for concurrent use; readers never observe a half-written state
// because both the slot and the file are updated under one lock.
type SessionManager struct {
	mu    sync.Mutex
	path  string
	state *SessionState
}

// DefaultSessionPath returns the session file location under the user
// config dir.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "inkwell", "session.json"), nil
}

// NewSessionManager restores any persisted session without contacting
// the server; a stale token is only discovered when a request is
// rejected. A missing or unreadable state file simply means logged out.
func NewSessionManager(path string) (*SessionManager, error) {
	if path == "" {
		return nil, errors.New("session path is required")
	}
	m := &SessionManager{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil || state.Token == "" {
		// Corrupt state file: treat as logged out rather than failing.
		return m, nil
	}
	m.state = &state
	return m, nil
}

// Login stores the identity/token pair in memory and on disk.
func (m *SessionManager) Login(user types.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := SessionState{User: user, Token: token}
	if err := m.persist(state); err != nil {
		return err
	}
	m.state = &state
	return nil
}

// Logout clears the session from memory and disk.
func (m *SessionManager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = nil
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// UpdateUser replaces the cached identity and re-persists the session.
// The token is untouched.
func (m *SessionManager) UpdateUser(user types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return errors.New("no active session")
	}
	state := SessionState{User: user, Token: m.state.Token}
	if err := m.persist(state); err != nil {
		return err
	}
	m.state = &state
	return nil
}

// Current returns the cached identity and token. ok is false when
// logged out.
func (m *SessionManager) Current() (user types.User, token string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return types.User{}, "", false
	}
	return m.state.User, m.state.Token, true
}

// Authenticated reports whether an identity is cached. It does not
// verify the token.
func (m *SessionManager) Authenticated() bool {
	_, _, ok := m.Current()
	return ok
}

// persist writes the state file atomically so a crash never leaves a
// token without its identity or vice versa.
func (m *SessionManager) persist(state SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp", m.path)
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Route is a client-side navigation target.
type Route string

const (
	RouteHome      Route = "/"
	RouteLogin     Route = "/login"
	RouteDashboard Route = "/dashboard"
)

// GuardProtected resolves navigation to a route that requires a
// session: without one the user is redirected to the login entry point.
func GuardProtected(authenticated bool, target Route) Route {
	if !authenticated {
		return RouteLogin
	}
	return target
}

// GuardPublicOnly resolves navigation to a pre-authentication route
// (login, registration): with a session the user is redirected to the
// dashboard.
func GuardPublicOnly(authenticated bool, target Route) Route {
	if authenticated {
		return RouteDashboard
	}
	return target
}

// ResolveUnknown resolves an unmatched route to the dashboard or the
// public landing page depending on session presence.
func ResolveUnknown(authenticated bool) Route {
	if authenticated {
		return RouteDashboard
	}
	return RouteHome
}
