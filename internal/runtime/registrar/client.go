// Package registrar publishes reactors to the lookup service and resolves
// peers through it.
package registrar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/jsoncodec"
	"github.com/drblury/reactorflow/internal/runtime/logging"
	"github.com/drblury/reactorflow/internal/runtime/lookup"
)

// DefaultPath is where the lookup service mounts its API.
const DefaultPath = "/lookup"

const maxResponseBytes = 64 << 10

// Resolver resolves a reactor name to its published entry.
type Resolver interface {
	Lookup(ctx context.Context, name string) (lookup.Entry, error)
}

// Client talks to a lookup service over HTTP. Transient failures (network
// errors, 5xx) are retried with exponential backoff; 4xx replies are final.
type Client struct {
	base       string
	http       *http.Client
	logger     logging.ServiceLogger
	maxElapsed time.Duration
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger logs retries.
func WithLogger(l logging.ServiceLogger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithRetry bounds retries by elapsed time and attempts. Zero keeps the
// default for that bound.
func WithRetry(maxElapsed time.Duration, maxTries uint) Option {
	return func(cl *Client) {
		if maxElapsed > 0 {
			cl.maxElapsed = maxElapsed
		}
		if maxTries > 0 {
			cl.maxTries = maxTries
		}
	}
}

// WithBackOff replaces the exponential policy used between attempts.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(cl *Client) { cl.newBackOff = f }
}

// NewClient targets the lookup API at baseURL joined with path. An empty
// path uses DefaultPath.
func NewClient(baseURL, path string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: lookup url is required", errspkg.ErrConfiguration)
	}
	if path == "" {
		path = DefaultPath
	}
	base, err := url.JoinPath(baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup url: %v", errspkg.ErrConfiguration, err)
	}

	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: 5 * time.Second},
		logger:     logging.NewDiscardLogger(),
		maxElapsed: 30 * time.Second,
		maxTries:   8,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.LogFields{"component": "registrar", "lookup_url": c.base})
	return c, nil
}

// Publish registers e and returns the entry as stored, including the
// channel assigned when e.StreamID was zero.
func (c *Client) Publish(ctx context.Context, e lookup.Entry) (lookup.Entry, error) {
	body, err := jsoncodec.Marshal(e)
	if err != nil {
		return lookup.Entry{}, err
	}
	var out lookup.Entry
	if err := c.do(ctx, http.MethodPost, c.base, body, &out); err != nil {
		return lookup.Entry{}, fmt.Errorf("publish %s: %w", e.Name, err)
	}
	return out, nil
}

// Lookup resolves name. Unknown names fail with ErrPeerNotFound.
func (c *Client) Lookup(ctx context.Context, name string) (lookup.Entry, error) {
	var out lookup.Entry
	if err := c.do(ctx, http.MethodGet, c.base+"/"+url.PathEscape(name), nil, &out); err != nil {
		return lookup.Entry{}, fmt.Errorf("lookup %s: %w", name, err)
	}
	return out, nil
}

// List returns every published entry.
func (c *Client) List(ctx context.Context) ([]lookup.Entry, error) {
	var out []lookup.Entry
	if err := c.do(ctx, http.MethodGet, c.base, nil, &out); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return out, nil
}

// Withdraw removes name from the lookup service.
func (c *Client) Withdraw(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, c.base+"/"+url.PathEscape(name), nil, nil); err != nil {
		return fmt.Errorf("withdraw %s: %w", name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	op := func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, target, body, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("Retrying lookup request", logging.LogFields{
			"method": method,
			"error":  err.Error(),
			"wait":   wait.String(),
		})
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxElapsedTime(c.maxElapsed),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify),
	)
	return err
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := jsoncodec.DecodeLimited(resp.Body, maxResponseBytes, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("lookup service returned %d", resp.StatusCode)
	default:
		return backoff.Permanent(statusError(resp))
	}
}

func statusError(resp *http.Response) error {
	var body lookup.ErrorResponse
	_ = jsoncodec.DecodeLimited(resp.Body, maxResponseBytes, &body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var class error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		class = errspkg.ErrPeerNotFound
	case resp.StatusCode == http.StatusConflict && body.Code == lookup.CodeDuplicateChannel:
		class = errspkg.ErrDuplicateChannel
	case resp.StatusCode == http.StatusConflict:
		class = errspkg.ErrDuplicateName
	default:
		return fmt.Errorf("lookup service returned %d: %s", resp.StatusCode, msg)
	}
	return errors.Join(class, errors.New(msg))
}
