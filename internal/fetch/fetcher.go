// Package fetch performs the byte transfer for image addresses and classifies
// every failure into a NetworkError so that callers can branch on the kind
// (status code, malformed response, transport, cancellation) instead of
// matching error strings.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/imagehub/internal/config"
)

// Method is the HTTP verb used for a fetch.
type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
)

// Fetcher downloads the body addressed by url. Implementations must be safe
// for concurrent use and must return *NetworkError on failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string, method Method) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string, method Method) ([]byte, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string, method Method) ([]byte, error) {
	return f(ctx, url, method)
}

const defaultMaxBodyBytes int64 = 20 << 20

// Options tunes HTTPFetcher.
type Options struct {
	MaxBodyBytes   int64
	MaxRetries     int
	InitialBackoff time.Duration
	UserAgent      string
	Logger         logrus.FieldLogger
}

// OptionsFromConfig maps the global configuration onto fetcher options.
func OptionsFromConfig(cfg *config.Config, logger logrus.FieldLogger) Options {
	opts := Options{Logger: logger}
	if cfg == nil {
		return opts
	}
	opts.MaxBodyBytes = cfg.Global.MaxImageSize
	opts.MaxRetries = cfg.Global.MaxRetries
	opts.InitialBackoff = cfg.Global.InitialBackoff.DurationValue()
	opts.UserAgent = cfg.Global.UserAgent
	return opts
}

// HTTPFetcher is the production Fetcher backed by a shared http.Client.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
}

// NewHTTPFetcher wraps client; a nil client falls back to http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts Options) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		opts.Logger = logger
	}
	return &HTTPFetcher{client: client, opts: opts}
}

// Fetch issues the request and retries transport failures and 5xx answers
// with exponential backoff. Cancellation is never retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, method Method) ([]byte, error) {
	if method == "" {
		method = MethodGet
	}

	backoff := f.opts.InitialBackoff
	var lastErr *NetworkError
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			f.opts.Logger.WithFields(logrus.Fields{
				"action":  "fetch_retry",
				"url":     url,
				"attempt": attempt,
				"backoff": backoff.String(),
			}).WithError(lastErr).Debug("retrying upstream fetch")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, CancelledError(url, ctx.Err())
			case <-timer.C:
			}
			backoff *= 2
		}

		body, err := f.fetchOnce(ctx, url, method)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string, method Method) ([]byte, *NetworkError) {
	req, err := http.NewRequestWithContext(ctx, string(method), url, nil)
	if err != nil {
		return nil, &NetworkError{Kind: KindTransport, URL: url, Err: err}
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, StatusCodeError(url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, &NetworkError{
			Kind: KindMalformedResponse,
			URL:  url,
			Err:  fmt.Errorf("body exceeds %d bytes", f.opts.MaxBodyBytes),
		}
	}
	return body, nil
}

// successStatus accepts 200-300 inclusive plus 304.
func successStatus(code int) bool {
	return (code >= http.StatusOK && code <= http.StatusMultipleChoices) || code == http.StatusNotModified
}

func classify(ctx context.Context, url string, err error) *NetworkError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return CancelledError(url, err)
	}
	if strings.Contains(err.Error(), "malformed HTTP") {
		return &NetworkError{Kind: KindMalformedResponse, URL: url, Err: err}
	}
	return &NetworkError{Kind: KindTransport, URL: url, Err: err}
}

func retryable(err *NetworkError) bool {
	switch err.Kind {
	case KindTransport:
		return true
	case KindStatusCode:
		return err.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}
