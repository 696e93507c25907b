// Package client provides the HTTP client for the remote file directory,
// with retry, rate limiting and online/offline tracking.
package client

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kanha321/mnnit-dark-web-reborn/pkg/models"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/protocol"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/retry"
	"github.com/kanha321/mnnit-dark-web-reborn/pkg/tree"
)

// Client talks to the file API of the server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	limiter     *rate.Limiter
	logger      *zap.Logger

	mu       sync.RWMutex
	online   bool
	lastPing time.Time
	watchers []func(online bool)
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config

	// RequestsPerSecond caps outgoing requests. 0 disables the limit.
	RequestsPerSecond float64
	Burst             int

	Logger *zap.Logger
}

// HTTPError is returned when the server answers with a non-OK status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		logger:      cfg.Logger,
		online:      true,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// BaseURL returns the server URL the client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsOnline returns true if the server was reachable on the last request.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// LastContact returns the time of the last request outcome.
func (c *Client) LastContact() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

// OnStatusChange registers fn to be called on every online/offline transition.
func (c *Client) OnStatusChange(fn func(online bool)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.lastPing = time.Now()
	var watchers []func(bool)
	if changed {
		watchers = append(watchers, c.watchers...)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	if online {
		c.logger.Info("server is back online", zap.String("server", c.baseURL))
	} else {
		c.logger.Warn("server is offline", zap.String("server", c.baseURL))
	}
	for _, fn := range watchers {
		fn(online)
	}
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.setOnline(false)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setOnline(false)
		return &HTTPError{StatusCode: resp.StatusCode}
	}

	c.setOnline(true)
	return nil
}

// ListDirectory returns the entries of the directory at path.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]models.FileInfo, error) {
	var entries []models.FileInfo
	if err := c.getJSON(ctx, "/api/files", tree.Clean(path), &entries); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return entries, nil
}

// Details returns the listing entry for a single path.
func (c *Client) Details(ctx context.Context, path string) (*models.FileInfo, error) {
	var info models.FileInfo
	if err := c.getJSON(ctx, "/api/files/details", tree.Clean(path), &info); err != nil {
		return nil, fmt.Errorf("details %s: %w", path, err)
	}
	return &info, nil
}

// ReadTextContent returns the text content of the file at path.
func (c *Client) ReadTextContent(ctx context.Context, path string) (string, error) {
	var resp protocol.ContentResponse
	if err := c.getJSON(ctx, "/api/files/content", tree.Clean(path), &resp); err != nil {
		return "", fmt.Errorf("content %s: %w", path, err)
	}
	return resp.Content, nil
}

// Download streams the raw bytes of the file at path.
// The caller must close the returned reader.
func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	resp, err := retry.DoWithResult(ctx, c.retryConfig, func() (*http.Response, error) {
		return c.do(ctx, "/api/files/download", tree.Clean(path))
	})
	if err != nil {
		return nil, 0, fmt.Errorf("download %s: %w", path, err)
	}

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, 0, err
		}
		return &gzipReadCloser{gr: gr, body: resp.Body}, -1, nil
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		resp, err := c.do(ctx, endpoint, path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var reader io.Reader = resp.Body
		if resp.Header.Get("Content-Encoding") == "gzip" {
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				return err
			}
			defer gr.Close()
			reader = gr
		}

		if err := json.NewDecoder(reader).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// do performs one GET attempt. Transport failures and 5xx responses are
// marked retryable. On success the caller owns resp.Body.
func (c *Client) do(ctx context.Context, endpoint, path string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	u := c.baseURL + endpoint + "?path=" + url.QueryEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.setOnline(false)
		return nil, retry.Retryable(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		herr := &HTTPError{StatusCode: resp.StatusCode}
		var errResp protocol.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil {
			herr.Message = errResp.Error
		}
		c.setOnline(true)
		if resp.StatusCode >= 500 {
			return nil, retry.Retryable(herr)
		}
		return nil, herr
	}

	c.setOnline(true)
	return resp, nil
}

type gzipReadCloser struct {
	gr   *gzip.Reader
	body io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.gr.Read(p)
}

func (g *gzipReadCloser) Close() error {
	g.gr.Close()
	return g.body.Close()
}
