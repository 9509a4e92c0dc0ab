// Package rest is a store.Backend that talks to the JSON HTTP API exposed by
// cmd/server (or any service with the same surface). The API speaks the
// application's camelCase form, so records are converted on the way out and in.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"reflect"
	"strings"
	"time"

	"inventory-admin/internal/mapper"
	"inventory-admin/internal/store"
)

var (
	_ store.Backend = (*Client)(nil)
	_ store.Counter = (*Client)(nil)
)

// DefaultReadAttempts is how many times a read is tried before giving up.
const DefaultReadAttempts = 3

// APIError is a non-2xx response. Errors holds per-field messages when the
// server reported a validation failure.
type APIError struct {
	Status  int
	Code    string
	Message string
	Errors  map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
}

// Client calls the REST API rooted at baseURL (e.g. http://host:8080/api).
type Client struct {
	baseURL      string
	http         *http.Client
	readAttempts int
	retryDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Its Jar, if any, carries
// the session cookies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithReadAttempts sets the fixed retry count for reads.
func WithReadAttempts(n int, delay time.Duration) Option {
	return func(c *Client) {
		if n > 0 {
			c.readAttempts = n
		}
		c.retryDelay = delay
	}
}

// NewClient returns a client with a cookie jar so credential cookies set by the
// server are sent back on every request.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid REST base URL %q: %w", baseURL, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Jar: jar, Timeout: 30 * time.Second},
		readAttempts: DefaultReadAttempts,
		retryDelay:   200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) List(ctx context.Context, collection string) ([]store.Record, error) {
	if err := store.CheckCollection(collection); err != nil {
		return nil, err
	}
	var body []map[string]any
	if err := c.read(ctx, "/"+collection+"/getAll", &body); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	pair := mapper.ForCollection(collection)
	out := make([]store.Record, 0, len(body))
	for _, m := range body {
		out = append(out, store.Record(pair.ToPersisted(m)))
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (store.Record, error) {
	if err := store.CheckCollection(collection); err != nil {
		return nil, err
	}
	var body map[string]any
	if err := c.read(ctx, "/"+collection+"/getById/"+url.PathEscape(id), &body); err != nil {
		return nil, notFound(err, "get %s %s", collection, id)
	}
	return store.Record(mapper.ForCollection(collection).ToPersisted(body)), nil
}

func (c *Client) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	if err := store.CheckCollection(collection); err != nil {
		return nil, err
	}
	pair := mapper.ForCollection(collection)
	var body map[string]any
	if err := c.do(ctx, http.MethodPost, "/"+collection+"/add", pair.ToApplication(store.StripSystemFields(rec)), &body); err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return store.Record(pair.ToPersisted(body)), nil
}

func (c *Client) Update(ctx context.Context, collection, id string, patch store.Record) (store.Record, error) {
	if err := store.CheckCollection(collection); err != nil {
		return nil, err
	}
	pair := mapper.ForCollection(collection)
	var body map[string]any
	if err := c.do(ctx, http.MethodPut, "/"+collection+"/update/"+url.PathEscape(id), pair.ToApplication(store.StripSystemFields(patch)), &body); err != nil {
		return nil, notFound(err, "update %s %s", collection, id)
	}
	return store.Record(pair.ToPersisted(body)), nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := store.CheckCollection(collection); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, "/"+collection+"/delete/"+url.PathEscape(id), nil, nil); err != nil {
		return notFound(err, "delete %s %s", collection, id)
	}
	return nil
}

// Find filters the full collection client-side; the API has no query endpoint.
func (c *Client) Find(ctx context.Context, collection, field string, value any) ([]store.Record, error) {
	recs, err := c.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if reflect.DeepEqual(r[field], value) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Increment advances the server's counter for entityType through
// GET /numbers/{entity}/next. Each call consumes a value, so it is not
// retried. A number the server minted without its counter is reported as an
// error and the caller applies its own fallback.
func (c *Client) Increment(ctx context.Context, entityType string) (int64, error) {
	var body struct {
		Number   string `json:"number"`
		Sequence int64  `json:"sequence"`
	}
	if err := c.do(ctx, http.MethodGet, "/numbers/"+url.PathEscape(entityType)+"/next", nil, &body); err != nil {
		return 0, fmt.Errorf("next %s number: %w", entityType, err)
	}
	if body.Sequence <= 0 {
		return 0, fmt.Errorf("next %s number: server counter unavailable (got %q)", entityType, body.Number)
	}
	return body.Sequence, nil
}

// read retries GETs a fixed number of times on transport errors and 5xx.
func (c *Client) read(ctx context.Context, path string, out any) error {
	var err error
	for attempt := 1; attempt <= c.readAttempts; attempt++ {
		err = c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil || !retryable(err) || attempt == c.readAttempts {
			return err
		}
		log.Printf("rest: GET %s attempt %d failed: %v", path, attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Message string            `json:"message"`
		Code    string            `json:"code"`
		Errors  map[string]string `json:"errors"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(b, &payload) == nil {
		apiErr.Message = payload.Message
		apiErr.Code = payload.Code
		apiErr.Errors = payload.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func notFound(err error, format string, args ...any) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return store.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
