package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrNotFound     = errors.New("backend object not found")
	ErrUnauthorized = errors.New("backend request unauthorized")
	ErrForbidden    = errors.New("backend request forbidden")
)

// APIError reports a backend response outside the well-known statuses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend api error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("backend api error (status=%d): %s", e.StatusCode, body)
}

const (
	defaultTimeout   = 30 * time.Second
	defaultCacheSize = 256
	maxResponseBytes = 8 << 20
)

// Config configures a backend client.
type Config struct {
	// Endpoint is the platform base URL, e.g. https://platform.example.com.
	Endpoint string
	// Tokens supplies the Authorization header. Nil means anonymous requests.
	Tokens TokenProvider
	// Timeout bounds each request. Zero means 30s.
	Timeout time.Duration
	// CacheSize bounds the read-through cache. Zero means 256 entries.
	CacheSize int
	// Logger receives request-level debug logs. Nil means discard.
	Logger *slog.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return errors.New("backend endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("backend endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend endpoint %q must use http or https", endpoint)
	}
	if c.CacheSize < 0 {
		return errors.New("backend cache size must not be negative")
	}
	return nil
}

// Client is the path-keyed document client for the platform API.
type Client struct {
	baseURL string
	tokens  TokenProvider
	http    *http.Client
	cache   *lru.Cache[string, map[string]any]
	logger  *slog.Logger
}

// New builds a client from the configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	size := cfg.CacheSize
	if size == 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, map[string]any](size)
	if err != nil {
		return nil, fmt.Errorf("build read cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		tokens:  cfg.Tokens,
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
		logger:  logger,
	}, nil
}

// CreateObject stores a new document under the collection path and returns
// the backend's representation of it.
func (c *Client) CreateObject(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	return c.send(ctx, http.MethodPost, path, payload)
}

// ReadObject fetches the document at path.
func (c *Client) ReadObject(ctx context.Context, path string) (map[string]any, error) {
	return c.send(ctx, http.MethodGet, path, nil)
}

// UpdateObject replaces the document at path and returns the backend's
// representation of it.
func (c *Client) UpdateObject(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	c.cache.Remove(path)
	return c.send(ctx, http.MethodPut, path, payload)
}

// DeleteObject removes the document at path.
func (c *Client) DeleteObject(ctx context.Context, path string) error {
	c.cache.Remove(path)
	_, err := c.send(ctx, http.MethodDelete, path, nil)
	return err
}

// ReadCached fetches the document at path through the client's LRU cache.
// Suitable for documents that do not change once written, such as function
// and task versions.
func (c *Client) ReadCached(ctx context.Context, path string) (map[string]any, error) {
	if doc, ok := c.cache.Get(path); ok {
		return cloneDoc(doc), nil
	}
	doc, err := c.ReadObject(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, doc)
	return cloneDoc(doc), nil
}

// Invalidate drops the cached document at path, if any.
func (c *Client) Invalidate(path string) {
	c.cache.Remove(path)
}

func (c *Client) send(ctx context.Context, method, path string, payload map[string]any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		header, err := c.tokens.AuthHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve credentials: %w", err)
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode backend response: %w", err)
		}
		return out, nil
	case http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusForbidden:
		return nil, ErrForbidden
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
}

func cloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
