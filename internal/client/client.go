package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/inkwell-blog/apiserver/types"
)

// ErrSessionExpired is returned when an authenticated request is
// rejected with 401. The local session has already been cleared by the
// time the caller sees it, whatever the server-side cause was (expired
// token, invalid token, deleted user).
var ErrSessionExpired = errors.New("session expired, please log in again")

// ErrNotAuthenticated is returned when an authenticated call is
// attempted without a session.
var ErrNotAuthenticated = errors.New("not logged in")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the inkwell API and keeps the session manager in sync
// with the outcome of each call.
type Client struct {
	baseURL string
	http    *http.Client
	session *SessionManager
}

func New(baseURL string, session *SessionManager) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: session,
	}
}

// Session exposes the session manager for guard evaluation.
func (c *Client) Session() *SessionManager {
	return c.session
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// Register creates an account and starts a session.
func (c *Client) Register(ctx context.Context, name, email, password, username string) (types.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", registerRequest{
		Name:     name,
		Email:    email,
		Password: password,
		Username: username,
	}, &resp, "")
	if err != nil {
		return types.User{}, err
	}
	if err := c.session.Login(resp.User, resp.Token); err != nil {
		return types.User{}, err
	}
	return resp.User, nil
}

// Login authenticates and starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (types.User, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &resp, "")
	if err != nil {
		return types.User{}, err
	}
	if err := c.session.Login(resp.User, resp.Token); err != nil {
		return types.User{}, err
	}
	return resp.User, nil
}

// Logout discards the local session. The token stays valid server-side
// until its expiry; that is inherent to the bearer scheme.
func (c *Client) Logout() error {
	return c.session.Logout()
}

// Me fetches the current identity from the server.
func (c *Client) Me(ctx context.Context) (types.User, error) {
	var user types.User
	if err := c.doAuthenticated(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// ProfileUpdate carries optional profile changes; nil fields are left
// unchanged.
type ProfileUpdate struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

// UpdateProfile applies a partial profile update and refreshes the
// cached identity. The token is untouched.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (types.User, error) {
	var user types.User
	if err := c.doAuthenticated(ctx, http.MethodPut, "/auth/profile", update, &user); err != nil {
		return types.User{}, err
	}
	if err := c.session.UpdateUser(user); err != nil {
		return types.User{}, err
	}
	return user, nil
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword rotates the account password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.doAuthenticated(ctx, http.MethodPut, "/auth/change-password", changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	}, nil)
}

// MyPosts lists the caller's posts, drafts included.
func (c *Client) MyPosts(ctx context.Context) ([]types.Post, error) {
	var posts []types.Post
	if err := c.doAuthenticated(ctx, http.MethodGet, "/posts/mine", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// doAuthenticated sends a request with the session's bearer token. Any
// 401 response triggers the uniform invalidate-session path before the
// error is returned.
func (c *Client) doAuthenticated(ctx context.Context, method, path string, body, out any) error {
	_, token, ok := c.session.Current()
	if !ok {
		return ErrNotAuthenticated
	}

	err := c.do(ctx, method, path, body, out, token)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		_ = c.session.Logout()
		return ErrSessionExpired
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, token string) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
