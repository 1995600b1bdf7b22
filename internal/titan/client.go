package titan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/crimson-sun/tally/internal/model"
)

const (
	maxRetries  = 2 // 3 attempts total
	backoffBase = 1 * time.Second
	backoffCap  = 10 * time.Second

	maxErrorBody = 512
)

// APIError represents a non-2xx or malformed response from the resource API.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Body       string // first 512 bytes of the response
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d for %s: %s", e.StatusCode, e.URL, e.Message)
}

// TimeoutError represents a request that exceeded the client timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s: %s", e.Timeout, e.URL)
}

// TokenSource supplies a bearer token for each request. The TokenProvider
// implements it; its cache makes the per-request call cheap.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff replaces the retry backoff factory. Tests use this to drop
// the waits between attempts.
func WithBackoff(f func() retry.Backoff) Option {
	return func(c *Client) { c.newBackoff = f }
}

// Client talks to the ServiceTitan API: bearer auth plus app-key header on
// every request, JSON responses, and uniform retry over network errors,
// timeouts and API errors.
type Client struct {
	baseURL    string
	appKey     string
	tokens     TokenSource
	httpClient *http.Client
	newBackoff func() retry.Backoff
}

// NewClient creates a Client for the given API base URL.
func NewClient(baseURL string, appKey string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		appKey:     appKey,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newBackoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultBackoff waits 1s doubling per attempt, capped at 10s.
func defaultBackoff() retry.Backoff {
	return retry.WithCappedDuration(backoffCap, retry.NewExponential(backoffBase))
}

// Request performs one authenticated API call and decodes the JSON object
// response. Every failure mode — transport errors, timeouts, non-2xx
// statuses, unparseable bodies — is retried up to 3 attempts total; the
// final attempt's error is returned as-is.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (map[string]any, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var result map[string]any
	err := retry.Do(ctx, retry.WithMaxRetries(maxRetries, c.newBackoff()), func(ctx context.Context) error {
		payload, err := c.do(ctx, method, fullURL, body)
		if err != nil {
			return retry.RetryableError(err)
		}
		result = payload
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, fullURL string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("titan: marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ST-App-Key", c.appKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Timeout() {
			return nil, &TimeoutError{URL: fullURL, Timeout: c.httpClient.Timeout}
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "non-success status code",
			URL:        fullURL,
			Body:       truncate(string(respBody)),
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "failed to parse JSON response",
			URL:        fullURL,
			Body:       truncate(string(respBody)),
		}
	}
	return payload, nil
}

// Paginate returns a lazy sequence over the elements of each page's "data"
// array, issuing requests with Page counting up from 1 and a fixed PageSize
// until a response's hasMore flag is absent or false. Only object-typed
// elements are yielded. The sequence is finite and not restartable:
// ranging over it again re-issues requests from page 1.
func (c *Client) Paginate(ctx context.Context, path string, query url.Values, pageSize int) iter.Seq2[model.RawInvoice, error] {
	return func(yield func(model.RawInvoice, error) bool) {
		for page := 1; ; page++ {
			q := url.Values{}
			for k, vs := range query {
				q[k] = vs
			}
			q.Set("Page", strconv.Itoa(page))
			q.Set("PageSize", strconv.Itoa(pageSize))

			payload, err := c.Request(ctx, http.MethodGet, path, q, nil)
			if err != nil {
				yield(nil, err)
				return
			}

			if data, present := payload["data"]; present {
				list, ok := data.([]any)
				if !ok {
					yield(nil, &APIError{
						StatusCode: http.StatusOK,
						Message:    `unexpected payload shape: "data" is not a list`,
						URL:        c.baseURL + "/" + strings.TrimLeft(path, "/"),
						Body:       truncate(fmt.Sprint(payload)),
					})
					return
				}
				for _, item := range list {
					obj, ok := item.(map[string]any)
					if !ok {
						continue
					}
					if !yield(model.RawInvoice(obj), nil) {
						return
					}
				}
			}

			if hasMore, _ := payload["hasMore"].(bool); !hasMore {
				return
			}
		}
	}
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
