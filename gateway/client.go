// Package gateway is the typed REST client for the reader backend.
//
// Each call makes a single attempt. Non-2xx responses, and 2xx responses whose
// envelope carries an error code, become *APIError with the server's message.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/betareaderbr/betareader/models"
)

// IdentityHeader carries the reader's e-mail next to the session credential.
const IdentityHeader = "X-User-Email"

// Client calls the backend. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu       sync.RWMutex
	token    string
	identity string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithIdentity sets the identity header value.
func WithIdentity(email string) Option {
	return func(c *Client) { c.identity = email }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a Client for the backend at baseURL, e.g. "https://betareader.com.br".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetToken replaces the session credential, e.g. after login.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SetIdentity replaces the identity header value.
func (c *Client) SetIdentity(email string) {
	c.mu.Lock()
	c.identity = email
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, header http.Header) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.identity != "" {
		req.Header.Set(IdentityHeader, c.identity)
	}
	c.mu.RUnlock()
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	var env models.Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &env)

	status := resp.StatusCode
	if status >= 200 && status <= 299 && decodeErr == nil && env.Code != models.CodeOK {
		// A proxy may flatten the status; the business code still carries it.
		if s := models.StatusOf(env.Code); s != 0 {
			status = s
		}
	}
	if status < 200 || status > 299 {
		apiErr := &APIError{Status: status, Code: env.Code, Message: env.Message}
		if decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = defaultErrorMessage
		}
		c.log.Debug("gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}

func versionHeader(expectVersion int64) http.Header {
	if expectVersion <= 0 {
		return nil
	}
	h := http.Header{}
	h.Set("If-Match", strconv.FormatInt(expectVersion, 10))
	return h
}

func pageQuery(q url.Values, page, pageSize int) string {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
