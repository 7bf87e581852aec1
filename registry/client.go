package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/input-output-hk/migrate-npm-registry/errors"
)

// Client fetches metadata documents and tarballs from npm registries.
type Client struct {
	http      *retryablehttp.Client
	logger    *slog.Logger
	userAgent string
}

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	logger       *slog.Logger
	httpClient   *http.Client
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	userAgent    string
}

// Option is a functional option for configuring the Client.
type Option func(*clientOptions)

// WithLogger configures the client with a custom logger.
// If logger is nil, logging will be disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *clientOptions) {
		opts.logger = logger
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(opts *clientOptions) {
		opts.httpClient = c
	}
}

// WithRetryMax sets how many times a failed request is retried.
// Zero, the default, sends every request exactly once.
func WithRetryMax(n int) Option {
	return func(opts *clientOptions) {
		if n < 0 {
			n = 0
		}
		opts.retryMax = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(opts *clientOptions) {
		opts.retryWaitMin = minWait
		opts.retryWaitMax = maxWait
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(opts *clientOptions) {
		opts.userAgent = ua
	}
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		retryMax:     0,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
		userAgent:    "migrate-npm-registry",
	}
}

// NewClient creates a registry client.
func NewClient(opts ...Option) *Client {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rc := retryablehttp.NewClient()
	if options.httpClient != nil {
		rc.HTTPClient = options.httpClient
	}
	rc.RetryMax = options.retryMax
	rc.RetryWaitMin = options.retryWaitMin
	rc.RetryWaitMax = options.retryWaitMax
	rc.Logger = logger
	// Hand the last response back untouched so status codes stay visible to
	// callers even after retries on 5xx are exhausted.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		http:      rc,
		logger:    logger,
		userAgent: options.userAgent,
	}
}

// MetadataURL returns the metadata document URL of pkg on endpoint. One
// trailing slash on endpoint is dropped.
func MetadataURL(endpoint, pkg string) string {
	return strings.TrimSuffix(endpoint, "/") + "/" + pkg
}

// Fetch issues GET <endpoint>/<pkg> and returns the status and body.
func (c *Client) Fetch(ctx context.Context, endpoint, pkg string) (*Response, error) {
	url := MetadataURL(endpoint, pkg)

	resp, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err, url, "failed to read metadata response")
	}

	c.logger.Debug("fetched metadata", "url", url, "status", resp.StatusCode, "bytes", len(body))

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// FetchSource fetches and parses the metadata of pkg on the source registry.
// A non-200 answer is a CodeSourceFetch error and an unparsable body is a
// CodeMetadataParse error.
func (c *Client) FetchSource(ctx context.Context, endpoint, pkg string) (*Metadata, error) {
	resp, err := c.Fetch(ctx, endpoint, pkg)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WrapWithContext(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			errors.CodeSourceFetch,
			"Error fetching source metadata",
			map[string]any{"package": pkg, "status": resp.StatusCode},
		)
	}

	meta, err := parseMetadata(resp.Body)
	if err != nil {
		return nil, errors.WrapWithContext(
			err,
			errors.CodeMetadataParse,
			"failed to parse source metadata",
			map[string]any{"package": pkg},
		)
	}
	return meta, nil
}

// FetchTarget fetches the metadata of pkg on the target registry. A package
// the target does not know, signalled by a non-200 status or a body that is
// not a metadata document, yields (nil, nil). Transport failures are errors.
func (c *Client) FetchTarget(ctx context.Context, endpoint, pkg string) (*Metadata, error) {
	resp, err := c.Fetch(ctx, endpoint, pkg)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("package absent on target", "package", pkg, "status", resp.StatusCode)
		return nil, nil
	}

	meta, err := parseMetadata(resp.Body)
	if err != nil {
		c.logger.Debug("target metadata unparsable, treating package as absent", "package", pkg, "error", err)
		return nil, nil
	}
	return meta, nil
}

// Download opens a streaming GET of a tarball. The caller must close the
// returned body.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.get(ctx, url, "application/octet-stream")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to download tarball")
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, errors.WrapWithContext(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			errors.CodeArchiveTransfer,
			"failed to download tarball",
			map[string]any{"url": url, "status": resp.StatusCode},
		)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidInput, "invalid registry URL", map[string]any{"url": url})
	}
	req.Header.Set("Accept", accept)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err, url, "registry request failed")
	}
	return resp, nil
}

func (c *Client) transportError(ctx context.Context, err error, url, msg string) error {
	ctxInfo := map[string]any{"url": url}
	switch {
	case ctx.Err() != nil:
		return errors.WrapWithContext(err, errors.CodeCancelled, msg, ctxInfo)
	case errors.ClassifyNetwork(err):
		return errors.WrapWithContext(err, errors.CodeNetworkUnreachable, msg, ctxInfo)
	default:
		return errors.WrapWithContext(err, errors.CodeUnknown, msg, ctxInfo)
	}
}

func parseMetadata(body []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}
	if meta.Versions == nil {
		meta.Versions = map[string]Version{}
	}
	return &meta, nil
}
