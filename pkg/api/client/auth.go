package client

import (
	"context"
	"net/http"
)

// User reflects the profile payload returned by the auth routes.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TokenPair includes access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session is the payload of signup, login and refresh.
type Session struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// SignupRequest is the registration form.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Signup registers an account.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodPost, "/auth/signup", in, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the profile behind token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
