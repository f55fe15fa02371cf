// Package auth provides the authentication client and session manager.
//
// The backend issues revocable session tokens: a credential login returns
// a token, and a stored token can later be exchanged for the same identity
// without re-entering credentials. The session manager persists the
// credential material between process runs and owns the restore/auto-login
// logic; nothing else touches the saved session.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Identity is an authenticated user as reported by the backend.
type Identity struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	SessionToken string `json:"session_token"`
}

// Service is the authentication backend consumed by the session manager.
type Service interface {
	// Login exchanges credentials for an identity with a fresh session token.
	Login(ctx context.Context, email, password string) (*Identity, error)

	// Become materializes an identity from a previously issued session token.
	Become(ctx context.Context, token string) (*Identity, error)

	// Current returns the identity established by the last successful
	// Login or Become, or nil if none exists.
	Current() *Identity

	// Logout drops the current identity.
	Logout()
}

// ErrInvalidCredentials is returned when the backend rejects an
// email/password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned when the backend rejects a session token.
var ErrInvalidToken = errors.New("invalid session token")

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	current *Identity
}

// NewClient creates an auth client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login implements Service.Login.
func (c *Client) Login(ctx context.Context, email, password string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("login failed: unexpected status %s", resp.Status)
	}

	ident, err := decodeIdentity(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	c.setCurrent(ident)
	return ident, nil
}

// Become implements Service.Become.
func (c *Client) Become(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("session restore failed: unexpected status %s", resp.Status)
	}

	ident, err := decodeIdentity(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if ident.SessionToken == "" {
		ident.SessionToken = token
	}

	c.setCurrent(ident)
	return ident, nil
}

// Current implements Service.Current.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Logout implements Service.Logout.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func (c *Client) setCurrent(ident *Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ident
}

func decodeIdentity(r io.Reader) (*Identity, error) {
	var ident Identity
	if err := json.NewDecoder(r).Decode(&ident); err != nil {
		return nil, err
	}
	if ident.ID == "" {
		return nil, fmt.Errorf("response carries no user id")
	}
	return &ident, nil
}
