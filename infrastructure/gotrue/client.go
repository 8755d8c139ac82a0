// Package gotrue talks to a GoTrue-compatible hosted auth server:
// PKCE OAuth sign-in, code exchange, refresh and logout.
package gotrue

import (
	"bytes"
	"chat-room/auth"
	"chat-room/contract"
	"chat-room/domain/chat"
	"chat-room/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	flowParam    = "flow"
	expirySkew   = 30 * time.Second
	maxErrorBody = 4 << 10
)

type Config struct {
	// URL is the auth base URL, e.g. https://project.example.co/auth/v1.
	URL    string
	APIKey string
	// RedirectURL is where the provider sends the browser back with ?code=.
	RedirectURL string
	// JWTSecret verifies access tokens when set; otherwise claims are only decoded.
	JWTSecret []byte
}

type user struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	UserMetadata auth.UserMetadata `json:"user_metadata"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *user  `json:"user"`
}

// Client keeps the current session and notifies listeners whenever it changes.
type Client struct {
	log    *slog.Logger
	config Config
	http   *http.Client
	now    func() time.Time

	mu        sync.Mutex
	session   *chat.Session
	verifiers map[string]string
	listeners map[string]func(*chat.Session)
}

var _ contract.AuthService = (*Client)(nil)

func NewClient(log *slog.Logger, config Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		log:       log,
		config:    config,
		http:      httpClient,
		now:       time.Now,
		verifiers: make(map[string]string),
		listeners: make(map[string]func(*chat.Session)),
	}
}

// CurrentSession returns the session, refreshing it first when expired.
// A failed refresh signs the user out and returns nil without error.
func (c *Client) CurrentSession(ctx context.Context) (*chat.Session, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, nil
	}
	if !session.Expired(c.now().Add(expirySkew)) {
		return session, nil
	}
	refreshed, err := c.Refresh(ctx)
	if err != nil {
		c.log.Warn("Session refresh failed", "error", err)
		c.setSession(nil)
		return nil, nil
	}
	return refreshed, nil
}

func (c *Client) OnAuthStateChange(listener func(session *chat.Session)) func() {
	id := uuid.NewString()
	c.mu.Lock()
	c.listeners[id] = listener
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// SignIn starts a PKCE flow and returns the URL the user must open.
func (c *Client) SignIn(_ context.Context, provider string) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("%w: no provider", errors.ErrAuthFailure)
	}
	flowID := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	redirect, err := url.Parse(c.config.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid redirect url: %v", errors.ErrAuthFailure, err)
	}
	rq := redirect.Query()
	rq.Set(flowParam, flowID)
	redirect.RawQuery = rq.Encode()

	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirect.String())
	q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")

	c.mu.Lock()
	c.verifiers[flowID] = verifier
	c.mu.Unlock()

	c.log.Debug("Sign-in flow started", "provider", provider, "flow", flowID)
	return c.endpoint("/authorize") + "?" + q.Encode(), nil
}

// Exchange trades the authorization code of flowID for a session.
func (c *Client) Exchange(ctx context.Context, flowID, code string) (*chat.Session, error) {
	c.mu.Lock()
	verifier, ok := c.verifiers[flowID]
	delete(c.verifiers, flowID)
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown sign-in flow %q", errors.ErrAuthFailure, flowID)
	}

	var resp tokenResponse
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.post(ctx, "/token?grant_type=pkce", "", body, &resp); err != nil {
		return nil, err
	}
	session, err := c.sessionFrom(resp)
	if err != nil {
		return nil, err
	}
	c.log.Info("Signed in", "user_id", session.UserID)
	c.setSession(session)
	return session, nil
}

// Refresh renews the current session with its refresh token.
func (c *Client) Refresh(ctx context.Context) (*chat.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", errors.ErrAuthFailure)
	}

	var resp tokenResponse
	body := map[string]string{"refresh_token": current.RefreshToken}
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}
	session, err := c.sessionFrom(resp)
	if err != nil {
		return nil, err
	}
	c.log.Debug("Session refreshed", "user_id", session.UserID)
	c.setSession(session)
	return session, nil
}

// SignOut revokes the session server side and always clears it locally.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil {
		return nil
	}
	err := c.post(ctx, "/logout", current.AccessToken, nil, nil)
	c.setSession(nil)
	return err
}

func (c *Client) sessionFrom(resp tokenResponse) (*chat.Session, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access token", errors.ErrAuthFailure)
	}
	var session *chat.Session
	if resp.User != nil && resp.User.ID != "" {
		session = &chat.Session{
			UserID:       resp.User.ID,
			Email:        resp.User.Email,
			FullName:     resp.User.UserMetadata.DisplayName(),
			AvatarURL:    resp.User.UserMetadata.Avatar(),
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
		}
	} else {
		claims, err := auth.ParseToken(resp.AccessToken, c.config.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrAuthFailure, err)
		}
		session = auth.SessionFromClaims(claims, resp.AccessToken, resp.RefreshToken)
	}
	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if err := auth.ValidateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) setSession(session *chat.Session) {
	c.mu.Lock()
	c.session = session
	listeners := make([]func(*chat.Session), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(session)
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimSuffix(c.config.URL, "/") + path
}

func (c *Client) post(ctx context.Context, path, bearer string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAuthFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("apikey", c.config.APIKey)
	}
	if bearer == "" {
		bearer = c.config.APIKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAuthFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s: %s", errors.ErrAuthFailure, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", errors.ErrAuthFailure, path, err)
	}
	return nil
}
