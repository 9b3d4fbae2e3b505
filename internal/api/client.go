// Package api is the single point of contact with the SceneBoard REST API.
// It attaches bearer credentials, refreshes an expired access token once,
// retries the original request once, and normalizes every failure into an
// *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/tokens"
)

const (
	pathRefresh = "/api/auth/token/refresh/"

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      tokens.Store
	Logger     logrus.FieldLogger
}

// Client is safe for concurrent use. The token pair is owned by the
// client: it is the only writer, everything else reads through it.
type Client struct {
	baseURL string
	http    *http.Client
	store   tokens.Store
	log     logrus.FieldLogger

	mu      sync.Mutex
	access  string
	refresh string

	// refreshMu serializes refresh attempts so concurrent 401s share one.
	refreshMu sync.Mutex

	hookMu sync.RWMutex
	hooks  []func()
}

// New creates a client. Tokens live in opts.Store, or in memory when it
// is nil.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	store := opts.Store
	if store == nil {
		store = tokens.NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		store:   store,
		log:     logger,
	}
}

// OnAuthFailure registers fn to run whenever the session is invalidated by
// an irrecoverable refresh failure. This is where a host application sends
// the user back to its login entry point.
func (c *Client) OnAuthFailure(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// ========================================
// Token pair
// ========================================

// AccessToken returns the held access token, lazily repopulating memory
// from durable storage.
func (c *Client) AccessToken(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access == "" {
		c.access = c.load(ctx, tokens.AccessKey)
	}
	return c.access
}

// RefreshToken returns the held refresh token, lazily loaded like AccessToken.
func (c *Client) RefreshToken(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refresh == "" {
		c.refresh = c.load(ctx, tokens.RefreshKey)
	}
	return c.refresh
}

// HasSession reports whether an access token is held.
func (c *Client) HasSession(ctx context.Context) bool {
	return c.AccessToken(ctx) != ""
}

// SetTokens replaces the pair in memory and in storage.
func (c *Client) SetTokens(ctx context.Context, pair models.TokenPair) error {
	c.mu.Lock()
	c.access = pair.Access
	c.refresh = pair.Refresh
	c.mu.Unlock()

	if err := c.store.Set(ctx, map[string]string{
		tokens.AccessKey:  pair.Access,
		tokens.RefreshKey: pair.Refresh,
	}); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	return nil
}

// ClearTokens drops both tokens from memory and storage.
func (c *Client) ClearTokens(ctx context.Context) error {
	c.mu.Lock()
	c.access = ""
	c.refresh = ""
	c.mu.Unlock()

	if err := c.store.Delete(ctx, tokens.AccessKey, tokens.RefreshKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

func (c *Client) load(ctx context.Context, key string) string {
	v, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("read token storage")
		return ""
	}
	return v
}

func (c *Client) setAccess(ctx context.Context, access string) {
	c.mu.Lock()
	c.access = access
	c.mu.Unlock()

	if err := c.store.Set(ctx, map[string]string{tokens.AccessKey: access}); err != nil {
		c.log.WithError(err).Warn("persist refreshed access token")
	}
}

func (c *Client) currentAccess() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access
}

// invalidate destroys the session and notifies the auth-failure hooks.
func (c *Client) invalidate(ctx context.Context) {
	if err := c.ClearTokens(ctx); err != nil {
		c.log.WithError(err).Warn("clear tokens after auth failure")
	}

	c.hookMu.RLock()
	hooks := append([]func(){}, c.hooks...)
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// ========================================
// Requests
// ========================================

// RequestOptions describes one call. Body is JSON-encoded unless nil.
type RequestOptions struct {
	Method  string
	Query   url.Values
	Headers http.Header
	Body    any

	// SkipAuth sends no bearer token and bypasses the refresh protocol.
	SkipAuth bool
}

// bodyFunc produces a fresh request body for each attempt.
type bodyFunc func() (r io.Reader, length int64, contentType string, err error)

type requestSpec struct {
	method   string
	endpoint string
	query    url.Values
	headers  http.Header
	body     bodyFunc
	skipAuth bool
}

// Request performs a JSON call and decodes a 2xx body into out (which may
// be nil). A 204 leaves out untouched.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions, out any) error {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	spec := requestSpec{
		method:   method,
		endpoint: endpoint,
		query:    opts.Query,
		headers:  opts.Headers,
		skipAuth: opts.SkipAuth,
	}
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		spec.body = func() (io.Reader, int64, string, error) {
			return bytes.NewReader(data), int64(len(data)), "", nil
		}
	}
	return c.execute(ctx, spec, out)
}

func (c *Client) execute(ctx context.Context, spec requestSpec, out any) error {
	token := ""
	if !spec.skipAuth {
		token = c.AccessToken(ctx)
	}

	resp, err := c.attempt(ctx, spec, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !spec.skipAuth {
		discard(resp)

		fresh, err := c.refreshAfter(ctx, token)
		if err != nil {
			return err
		}

		resp, err = c.attempt(ctx, spec, fresh)
		if err != nil {
			return err
		}
		// no second refresh: a retried 401 ends the session
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			c.invalidate(ctx)
			return AuthenticationFailed(nil)
		}
	}

	return c.decode(resp, out)
}

func (c *Client) attempt(ctx context.Context, spec requestSpec, token string) (*http.Response, error) {
	target := c.baseURL + spec.endpoint
	if len(spec.query) > 0 {
		target += "?" + spec.query.Encode()
	}

	var (
		body        io.Reader
		length      int64
		contentType string
	)
	if spec.body != nil {
		var err error
		body, length, contentType, err = spec.body()
		if err != nil {
			return nil, fmt.Errorf("prepare request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.ContentLength = length
	}

	req.Header.Set("Content-Type", "application/json")
	for key, values := range spec.headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	fields := logrus.Fields{
		"method":  spec.method,
		"path":    spec.endpoint,
		"latency": time.Since(start),
	}
	if err != nil {
		c.log.WithFields(fields).WithError(err).Debug("api request failed")
		return nil, NetworkError(err)
	}
	fields["status"] = resp.StatusCode
	c.log.WithFields(fields).Debug("api request")
	return resp, nil
}

// refreshAfter runs the refresh protocol for a request that was rejected
// while holding stale. It returns the access token to retry with.
//
// A refresh that cannot reach the server returns the NetworkError as is:
// both tokens are kept and the auth-failure hook does not fire. Only a
// missing or rejected refresh token ends the session with
// AuthenticationFailed.
func (c *Client) refreshAfter(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// another request already refreshed while this one waited
	if current := c.currentAccess(); current != "" && current != stale {
		return current, nil
	}

	refresh := c.RefreshToken(ctx)
	if refresh == "" {
		c.invalidate(ctx)
		return "", AuthenticationFailed(nil)
	}

	var out models.RefreshResponse
	err := c.Request(ctx, pathRefresh, RequestOptions{
		Method:   http.MethodPost,
		Body:     models.RefreshRequest{Refresh: refresh},
		SkipAuth: true,
	}, &out)
	if err != nil {
		if IsKind(err, KindNetwork) {
			return "", err
		}
		c.log.WithError(err).Info("token refresh rejected")
		c.invalidate(ctx)
		return "", AuthenticationFailed(err)
	}
	if out.Access == "" {
		c.invalidate(ctx)
		return "", AuthenticationFailed(errors.New("refresh response carried no access token"))
	}

	c.setAccess(ctx, out.Access)
	return out.Access, nil
}

func (c *Client) decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return NetworkError(err)
		}
		body := DecodeErrorBody(data)
		return &Error{
			Kind:    KindAPI,
			Status:  resp.StatusCode,
			Message: body.Text(resp.StatusCode),
			Body:    &body,
		}
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return NetworkError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{
			Kind:    KindAPI,
			Status:  resp.StatusCode,
			Message: "Unexpected response from server",
			Err:     err,
		}
	}
	return nil
}

func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
