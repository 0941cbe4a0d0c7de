package jsonapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

type CapturedRequest struct {
	Method  string
	Query   string
	Payload []byte
	Headers http.Header
}

type MockResponse struct {
	Text     string
	Redirect string
	Err      error
}

type MockRequest struct {
	Response MockResponse
	Request  CapturedRequest
}

type MockEndpoint struct {
	Requests []MockRequest
	Count    int
}

type MockData map[string]*MockEndpoint

func (mockData *MockData) Get(path string) *MockRequest {
	endpoint, exists := (*mockData)[path]
	if !exists {
		return nil
	}
	if endpoint.Count >= len(endpoint.Requests) {
		return nil
	}
	endpoint.Count++
	return &endpoint.Requests[endpoint.Count-1]
}

/*
MockTransport answers requests from MockData, keyed by URI. Each request to a
URI consumes the next MockRequest of that endpoint and records what was sent.
*/
type MockTransport struct {
	mu   sync.Mutex
	Data MockData
}

func (t *MockTransport) Get(
	ctx context.Context, uri, query string, headers http.Header,
) ([]byte, error) {
	return t.handle(http.MethodGet, uri, query, nil, headers)
}

func (t *MockTransport) Post(
	ctx context.Context, uri string, body []byte, headers http.Header,
) ([]byte, error) {
	return t.handle(http.MethodPost, uri, "", body, headers)
}

func (t *MockTransport) Patch(
	ctx context.Context, uri string, body []byte, headers http.Header,
) ([]byte, error) {
	return t.handle(http.MethodPatch, uri, "", body, headers)
}

func (t *MockTransport) Delete(
	ctx context.Context, uri string, body []byte, headers http.Header,
) ([]byte, error) {
	return t.handle(http.MethodDelete, uri, "", body, headers)
}

func (t *MockTransport) handle(
	method, uri, query string, payload []byte, headers http.Header,
) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mockRequest := t.Data.Get(uri)
	if mockRequest == nil {
		return nil, fmt.Errorf("%s not found", uri)
	}
	mockRequest.Request.Method = method
	mockRequest.Request.Query = query
	mockRequest.Request.Payload = payload
	mockRequest.Request.Headers = headers

	if mockRequest.Response.Err != nil {
		return nil, mockRequest.Response.Err
	}
	if mockRequest.Response.Redirect != "" {
		return nil, &RedirectError{mockRequest.Response.Redirect}
	}
	return []byte(mockRequest.Response.Text), nil
}

// GetTestConnection returns a Connection backed by a MockTransport. URIs have
// no host, eg '/articles/1'.
func GetTestConnection(mockData MockData, types ...*ResourceType) *Connection {
	registry, err := NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return &Connection{
		Transport: &MockTransport{Data: mockData},
		Registry:  registry,
	}
}
