package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobboard-portal/internal/domain"
	"jobboard-portal/internal/events"
	"jobboard-portal/internal/observability"
)

// Backend REST endpoints.
const (
	PathLogin                = "/api/auth/login/"
	PathRegister             = "/api/auth/register/"
	PathLogout               = "/api/auth/logout/"
	PathLogoutAll            = "/api/auth/logout-all/"
	PathProfile              = "/api/auth/profile/"
	PathChangePassword       = "/api/auth/change-password/"
	PathPasswordReset        = "/api/auth/password-reset/"
	PathPasswordResetConfirm = "/api/auth/password-reset/confirm/"
)

const (
	maxAttempts     = 3
	maxErrorBody    = 64 << 10
	defaultTimeout  = 10 * time.Second
	defaultBackoff  = time.Second
	signalSourceTag = "authclient"
)

// Client talks to the job-board REST backend. Credential tokens are kept in
// the repository, one per client instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      domain.CredentialRepository
	publisher  events.Publisher
	backoff    time.Duration
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBackoff sets the base delay between retries of idempotent requests.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a client for the backend at baseURL. publisher may be
// nil, in which case 401 responses are not signalled.
func NewClient(baseURL string, store domain.CredentialRepository, publisher events.Publisher, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		store:     store,
		publisher: publisher,
		backoff:   defaultBackoff,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Instance returns the view of the client bound to one client instance.
func (c *Client) Instance(clientID string) *Instance {
	return &Instance{client: c, clientID: clientID}
}

// Token returns the bearer token stored for clientID, or "" when there is
// none or it has expired.
func (c *Client) Token(ctx context.Context, clientID string) string {
	return c.Instance(clientID).Token(ctx)
}

// Ping checks that the backend answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathProfile, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

type request struct {
	method   string
	path     string
	body     interface{}
	token    string
	endpoint string
}

type response struct {
	status int
	body   []byte
}

// do sends req, retrying GETs on transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	var payload []byte
	if r.body != nil {
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempts := 1
	if r.method == http.MethodGet {
		attempts = maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.send(ctx, r, payload)
		if err == nil && resp.status < http.StatusInternalServerError {
			return resp, nil
		}
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		} else {
			lastErr = domain.NewStatusError(resp.status,
				fmt.Errorf("%w: status %d", domain.ErrBackendUnavailable, resp.status))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < attempts {
			select {
			case <-time.After(time.Duration(attempt) * c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if attempts > 1 {
		return nil, fmt.Errorf("%s %s failed after %d attempts: %w", r.method, r.path, attempts, lastErr)
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, r request, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.BackendRequestDuration.WithLabelValues(r.endpoint, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	observability.BackendRequestDuration.WithLabelValues(r.endpoint, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// decodeAuthError turns a 4xx body into an AuthError. The backend answers
// with {"field": ["msg"]}, {"detail": "msg"} or {"message": "msg"}.
func decodeAuthError(status int, body []byte) *domain.AuthError {
	authErr := &domain.AuthError{Status: status, Fields: map[string][]string{}}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		authErr.Message = strings.TrimSpace(string(body))
		if authErr.Message == "" {
			authErr.Message = http.StatusText(status)
		}
		return authErr
	}

	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			switch key {
			case "detail", "message", "error":
				if authErr.Message == "" {
					authErr.Message = s
				}
			default:
				authErr.Fields[key] = []string{s}
			}
			continue
		}
		var list []string
		if err := json.Unmarshal(value, &list); err == nil && len(list) > 0 {
			authErr.Fields[key] = list
		}
	}
	return authErr
}

func decodeJSON(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: malformed response: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens never expire locally.
func tokenExpired(token string, now time.Time) bool {
	exp, ok := jwtExpiry(token)
	return ok && !exp.After(now)
}
