// Package httputil holds the JSON response helpers shared by the HTTP
// handlers and the client abstraction used to drive a remote autopilot.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient abstracts HTTP operations for testability.
// Use NewStandardClient in production and MockHTTPClient in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient wraps c, or a client with the given timeout when c is nil.
func NewStandardClient(c *http.Client, timeout time.Duration) *StandardClient {
	if c == nil {
		c = &http.Client{Timeout: timeout}
	}
	return &StandardClient{Client: c}
}

// PostJSON posts body as application/json and decodes the response into
// out when out is non-nil. The status code is returned even when decoding
// fails so callers can tell transport errors from rejected requests.
func PostJSON(ctx context.Context, c HTTPClient, url string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response from %s: %w", url, err)
	}
	return resp.StatusCode, nil
}

// MockResponse is a canned response. A non-nil Error is returned from Do
// instead of a response.
type MockResponse struct {
	StatusCode int
	Body       string
	Error      error
}

// MockHTTPClient records requests and replays queued responses in order.
// Once the queue is empty it answers 200 with an empty body.
type MockHTTPClient struct {
	mu        sync.Mutex
	DoFunc    func(req *http.Request) (*http.Response, error)
	requests  []*http.Request
	bodies    [][]byte
	responses []MockResponse
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response.
func (m *MockHTTPClient) AddResponse(statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{StatusCode: statusCode, Body: body})
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Error: err})
	return m
}

// Do records req and its body, then returns the next queued response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	next := MockResponse{StatusCode: http.StatusOK}
	if len(m.responses) > 0 {
		next = m.responses[0]
		m.responses = m.responses[1:]
	}
	if next.Error != nil {
		return nil, next.Error
	}
	return &http.Response{
		StatusCode: next.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString(next.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Request returns the nth recorded request and its body, or nil.
func (m *MockHTTPClient) Request(n int) (*http.Request, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil, nil
	}
	return m.requests[n], m.bodies[n]
}
