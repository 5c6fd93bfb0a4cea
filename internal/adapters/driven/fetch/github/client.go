package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/audiovideoron/distillyzer/internal/retry"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Client wraps the go-github client with rate limiting and retries.
type Client struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
	retry       retry.Config
}

// ClientOption configures the client.
type ClientOption func(*Client) error

// WithBaseURL points the client at another API root, such as a test server.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) error {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("parse base URL: %w", err)
		}
		c.gh.BaseURL = u
		return nil
	}
}

// WithRate sets the proactive request rate.
func WithRate(perSecond rate.Limit) ClientOption {
	return func(c *Client) error {
		c.rateLimiter = NewRateLimiter(perSecond)
		return nil
	}
}

// WithRetry sets the retry policy for transient API failures.
func WithRetry(cfg retry.Config) ClientOption {
	return func(c *Client) error {
		c.retry = cfg
		return nil
	}
}

// NewClient creates a GitHub API client. An empty token makes unauthenticated requests.
func NewClient(ctx context.Context, token string, opts ...ClientOption) (*Client, error) {
	httpClient := &http.Client{Timeout: DefaultTimeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = DefaultTimeout
	}

	c := &Client{
		gh:          gh.NewClient(httpClient),
		rateLimiter: NewRateLimiter(rate.Limit(ProactiveRate)),
		retry:       retry.DefaultConfig,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// call waits for the rate limiter, runs fn with retries and records the quota headers.
func call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, *gh.Response, error)) (T, error) {
	return retry.Do(ctx, c.retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limit wait: %w", err)
		}
		v, resp, err := fn(ctx)
		if resp != nil {
			c.rateLimiter.UpdateFromResponse(resp.Response)
		}
		if err != nil {
			return zero, c.wrapError(err, op)
		}
		return v, nil
	})
}

// GetRepository fetches a single repository.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	return call(ctx, c, "get repo", func(ctx context.Context) (*gh.Repository, *gh.Response, error) {
		return c.gh.Repositories.Get(ctx, owner, repo)
	})
}

// GetTree fetches the entire tree for a repository recursively.
func (c *Client) GetTree(ctx context.Context, owner, repo, sha string) (*gh.Tree, error) {
	return call(ctx, c, "get tree", func(ctx context.Context) (*gh.Tree, *gh.Response, error) {
		return c.gh.Git.GetTree(ctx, owner, repo, sha, true)
	})
}

// GetBlob fetches a blob (file content) by its SHA.
func (c *Client) GetBlob(ctx context.Context, owner, repo, sha string) (*gh.Blob, error) {
	return call(ctx, c, "get blob", func(ctx context.Context) (*gh.Blob, *gh.Response, error) {
		return c.gh.Git.GetBlob(ctx, owner, repo, sha)
	})
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{StatusCode: ghErr.Response.StatusCode, Message: ghErr.Message}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
