// Package client provides the HTTP transport shared by the deep-link
// relay client and the identity-issuing service client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	jsonMIME = "application/json"
	cborMIME = "application/cbor"
)

// Client wraps http.Client with the JSON and CBOR envelope conventions
// the 1Pay.ing endpoints speak.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHeader adds a default header to all requests.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithHTTPClient replaces the underlying http.Client. Intended for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a new Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do performs the HTTP request with default headers applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for k, v := range c.headers {
		if req.Header.Get(k) == "" { // Don't override if already set
			req.Header.Set(k, v)
		}
	}

	return c.httpClient.Do(req)
}

// StatusError reports a non-2xx response along with its body, so callers
// can distinguish "not ready yet" from hard failures.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, string(e.Body))
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, url, jsonMIME, nil, out, json.Unmarshal)
}

// PostJSON performs a POST with a JSON body and decodes the JSON
// response into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodPost, url, jsonMIME, body, out, json.Unmarshal)
}

// GetCBOR performs a GET and decodes the CBOR response into out.
func (c *Client) GetCBOR(ctx context.Context, url string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, url, cborMIME, nil, out, cbor.Unmarshal)
}

// PostCBOR performs a POST with a CBOR body and decodes the CBOR
// response into out.
func (c *Client) PostCBOR(ctx context.Context, url string, in, out any) error {
	body, err := cbor.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodPost, url, cborMIME, body, out, cbor.Unmarshal)
}

func (c *Client) roundTrip(
	ctx context.Context,
	method, url, mime string,
	body []byte,
	out any,
	unmarshal func([]byte, any) error,
) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", mime)
	if body != nil {
		req.Header.Set("Content-Type", mime)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: data}
	}

	if out == nil {
		return nil
	}
	if err := unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
