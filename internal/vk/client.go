package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/ppiankov/wallharvest/internal/item"
)

const (
	DefaultBaseURL  = "https://api.vk.com/method"
	DefaultVersion  = "5.199"
	DefaultPageSize = 20
	DefaultTimeout  = 30 * time.Second
	DefaultAttempts = 5

	maxResponseSize = 16 << 20
	userAgent       = "wallharvest/1.0"
)

// API error codes that are worth retrying.
const (
	codeTooManyRequests = 6
	codeInternal        = 10
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is an error reported by the API inside a successful HTTP response.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
	Method  string `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk %s: error %d: %s", e.Method, e.Code, e.Message)
}

// Temporary reports whether repeating the call may succeed.
func (e *APIError) Temporary() bool {
	return e.Code == codeTooManyRequests || e.Code == codeInternal
}

type statusError struct {
	method string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vk %s: status %d", e.method, e.code)
}

// Options configure a Client.
type Options struct {
	Token    string
	Version  string
	BaseURL  string
	Timeout  time.Duration
	Attempts uint
	Delay    time.Duration

	HTTPClient HTTPClient
	Logger     *slog.Logger
}

// Client is an authenticated API session. Create one per process and pass it
// to the components that need it.
type Client struct {
	http     HTTPClient
	token    string
	version  string
	baseURL  string
	attempts uint
	delay    time.Duration
	log      *slog.Logger
}

// New creates a Client. A token is required.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("vk: access token is required")
	}

	c := &Client{
		http:     opts.HTTPClient,
		token:    opts.Token,
		version:  opts.Version,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		attempts: opts.Attempts,
		delay:    opts.Delay,
		log:      opts.Logger,
	}
	if c.version == "" {
		c.version = DefaultVersion
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.attempts == 0 {
		c.attempts = DefaultAttempts
	}
	if c.delay == 0 {
		c.delay = time.Second
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c, nil
}

// Call invokes an API method and decodes its "response" member into out.
// Transport failures and timeouts, 5xx/429 statuses and rate-limit errors
// are retried until ctx is done.
func (c *Client) Call(ctx context.Context, method string, params map[string]string, out any) error {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("access_token", c.token)
	form.Set("v", c.version)

	var body []byte
	err := retry.Do(
		func() error {
			var err error
			body, err = c.post(ctx, method, form)
			if err != nil {
				return err
			}
			return checkEnvelope(method, body)
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(c.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Info("retrying api call", "method", method, "attempt", n+1, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && retryable(err)
		}),
	)
	if err != nil {
		return fmt.Errorf("after retries: %w", err)
	}

	var env struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("vk %s: decode envelope: %w", method, err)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(env.Response))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("vk %s: decode response: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vk %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("api call completed",
		"method", method,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{method: method, code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("vk %s: read body: %w", method, err)
	}
	return body, nil
}

func checkEnvelope(method string, body []byte) error {
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return retry.Unrecoverable(fmt.Errorf("vk %s: decode envelope: %w", method, err))
	}
	if env.Error != nil {
		env.Error.Method = method
		return env.Error
	}
	return nil
}

// retryable classifies a failed attempt. Transport errors, including
// per-request timeouts, are retried; the caller's context is checked
// separately.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// Iter pages through a list method with offset/count parameters.
func (c *Client) Iter(ctx context.Context, req PageRequest) iter.Seq2[item.Item, error] {
	return paginate(ctx, req, func(ctx context.Context, offset, count int) (page, error) {
		params := make(map[string]string, len(req.Params)+2)
		for k, v := range req.Params {
			params[k] = v
		}
		params["offset"] = strconv.Itoa(offset)
		params["count"] = strconv.Itoa(count)

		var p page
		if err := c.Call(ctx, req.Method, params, &p); err != nil {
			return page{}, err
		}
		return p, nil
	})
}
