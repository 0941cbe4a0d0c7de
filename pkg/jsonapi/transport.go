package jsonapi

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const mediaType = "application/vnd.api+json"

/*
Transport issues the actual requests. Every method returns the raw response
body on success. Failures (network errors, non-2xx responses) are returned as
errors and never retried. Delete sends no body when 'body' is nil; relationship
endpoints take one.
*/
type Transport interface {
	Get(ctx context.Context, uri, query string, headers http.Header) ([]byte, error)
	Post(ctx context.Context, uri string, body []byte, headers http.Header) ([]byte, error)
	Patch(ctx context.Context, uri string, body []byte, headers http.Header) ([]byte, error)
	Delete(ctx context.Context, uri string, body []byte, headers http.Header) ([]byte, error)
}

// HTTPTransport is the Transport used outside of tests
type HTTPTransport struct {
	Token   string
	Client  http.Client
	Headers map[string]string

	// Optional; when set, every request waits for a token
	Limiter *rate.Limiter
}

func (t *HTTPTransport) Get(
	ctx context.Context, uri, query string, headers http.Header,
) ([]byte, error) {
	if query != "" {
		uri = uri + "?" + query
	}
	return t.request(ctx, http.MethodGet, uri, nil, headers)
}

func (t *HTTPTransport) Post(
	ctx context.Context, uri string, body []byte, headers http.Header,
) ([]byte, error) {
	return t.request(ctx, http.MethodPost, uri, body, headers)
}

func (t *HTTPTransport) Patch(
	ctx context.Context, uri string, body []byte, headers http.Header,
) ([]byte, error) {
	return t.request(ctx, http.MethodPatch, uri, body, headers)
}

func (t *HTTPTransport) Delete(
	ctx context.Context, uri string, body []byte, headers http.Header,
) ([]byte, error) {
	return t.request(ctx, http.MethodDelete, uri, body, headers)
}

func (t *HTTPTransport) request(
	ctx context.Context,
	method,
	uri string,
	payload []byte,
	headers http.Header,
) ([]byte, error) {
	if t.Limiter != nil {
		err := t.Limiter.Wait(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Copy so that concurrent requests don't race on CheckRedirect
	client := t.Client
	if client.CheckRedirect == nil {
		client.CheckRedirect = func(
			req *http.Request, via []*http.Request,
		) error {
			return &RedirectError{Location: req.URL.String()}
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	requestObj, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}

	for header, values := range headers {
		for _, value := range values {
			requestObj.Header.Add(header, value)
		}
	}
	if requestObj.Header.Get("Content-Type") == "" {
		requestObj.Header.Set("Content-Type", mediaType)
	}
	if requestObj.Header.Get("Accept") == "" {
		requestObj.Header.Set("Accept", mediaType)
	}
	if t.Token != "" {
		requestObj.Header.Set("Authorization", "Bearer "+t.Token)
	}
	for header, value := range t.Headers {
		requestObj.Header.Set(header, value)
	}
	if requestObj.Header.Get("X-Request-Id") == "" {
		requestObj.Header.Set("X-Request-Id", uuid.New().String())
	}

	response, err := client.Do(requestObj)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	retryError := parseRetryResponse(response)
	if retryError != nil {
		return nil, retryError
	}

	errorResponse := parseErrorResponse(response.StatusCode, responseBody)
	if errorResponse != nil {
		return nil, errorResponse
	}

	return responseBody, nil
}
