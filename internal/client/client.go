// Package client talks to the medminder API on behalf of the reminder agent.
// It is the agent's medicine source and its remote intake recorder.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"medminder/internal/intake"
	"medminder/internal/models"
)

var (
	ErrNotConfigured = errors.New("api client not configured")
	ErrNotLoggedIn   = errors.New("api client not logged in")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Code)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string

	// HTTPClient is optional (for testing).
	HTTPClient *http.Client

	Timeout time.Duration
}

// User is the identity returned by login.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string

	mu       sync.Mutex
	token    string
	username string
	password string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Login authenticates and keeps the token. The credentials are remembered so
// an expired session is renewed transparently once per request.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	var resp struct {
		Token string `json:"token"`
		User  *User  `json:"user"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if resp.Token == "" || resp.User == nil {
		return nil, fmt.Errorf("login failed: empty token in response")
	}

	c.mu.Lock()
	c.token = resp.Token
	c.username = username
	c.password = password
	c.mu.Unlock()

	return resp.User, nil
}

// ListMedicines returns the user's active medicines.
func (c *Client) ListMedicines(ctx context.Context) ([]*models.Medicine, error) {
	var meds []*models.Medicine
	if err := c.authed(ctx, http.MethodGet, "/api/medicines?filter=active", nil, &meds); err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	return meds, nil
}

// Record posts an intake event. The server takes the user from the token.
func (c *Client) Record(ctx context.Context, req intake.Request) error {
	if err := c.authed(ctx, http.MethodPost, "/api/intake", req, nil); err != nil {
		return fmt.Errorf("failed to record intake: %w", err)
	}
	return nil
}

// Stats returns the user's points and streak.
func (c *Client) Stats(ctx context.Context) (*models.UserStats, error) {
	var stats models.UserStats
	if err := c.authed(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &stats, nil
}

func (c *Client) authed(ctx context.Context, method, path string, in, out interface{}) error {
	c.mu.Lock()
	token, username, password := c.token, c.username, c.password
	c.mu.Unlock()

	if token == "" {
		return ErrNotLoggedIn
	}

	err := c.send(ctx, method, path, token, in, out)
	if !IsUnauthorized(err) || username == "" {
		return err
	}

	if _, err := c.Login(ctx, username, password); err != nil {
		return err
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()
	return c.send(ctx, method, path, token, in, out)
}

func (c *Client) send(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}
