package jsonapi

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

/*
Error is the error document a server sends with a 4xx or 5xx status. Reach it
with errors.As to look at the individual error objects:

    article := api.New(articles)
    article.Set("title", "")
    err := article.Save(ctx)
    var e *jsonapi.Error
    if errors.As(err, &e) {
        for _, item := range e.Errors {
            if item.Source.Pointer == "/data/attributes/title" {
                fmt.Println("Pick another title:", item.Detail)
            }
        }
    }
*/
type Error struct {
	StatusCode int
	Errors     []ErrorItem `json:"errors"`
}

type ErrorItem struct {
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Source struct {
		Pointer   string `json:"pointer,omitempty"`
		Parameter string `json:"parameter,omitempty"`
	} `json:"source,omitempty"`
}

/*
Error renders the status code followed by one entry per error object, using
the most specific text the server sent:

    422: invalid_value (/data/attributes/title): must not be empty
*/
func (e *Error) Error() string {
	result := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		text := item.Detail
		if text == "" {
			text = item.Title
		}
		label := item.Code
		if label == "" {
			label = item.Status
		}
		if item.Source.Pointer != "" {
			label = fmt.Sprintf("%s (%s)", label, item.Source.Pointer)
		} else if item.Source.Parameter != "" {
			label = fmt.Sprintf("%s (%s)", label, item.Source.Parameter)
		}
		result = append(result, fmt.Sprintf("%s: %s", label, text))
	}
	if len(result) == 0 {
		return fmt.Sprintf("%d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, strings.Join(result, "; "))
}

// parseErrorResponse returns nil for successful responses. A body that is not
// an error document still yields an *Error carrying the status code.
func parseErrorResponse(statusCode int, body []byte) *Error {
	if statusCode < 400 {
		return nil
	}
	result := &Error{StatusCode: statusCode}
	_ = json.Unmarshal(body, result)
	return result
}

// RedirectError is returned instead of following a 3xx response
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("resource moved to '%s'", e.Location)
}

// RetryError means the server is throttling or temporarily unavailable.
// Nothing is retried automatically; RetryAfter is in seconds.
type RetryError struct {
	StatusCode int
	RetryAfter int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf(
		"server responded with %d, retry after %d seconds",
		e.StatusCode, e.RetryAfter,
	)
}

const (
	defaultRetryAfter     = 1
	unavailableRetryAfter = 10
)

func parseRetryResponse(response *http.Response) *RetryError {
	switch response.StatusCode {
	case http.StatusTooManyRequests:
	case http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return &RetryError{response.StatusCode, unavailableRetryAfter}
	default:
		return nil
	}

	header := response.Header.Get("Retry-After")
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return &RetryError{response.StatusCode, seconds}
	}
	// Retry-After may also be an HTTP date
	if when, err := http.ParseTime(header); err == nil {
		seconds := int(math.Ceil(time.Until(when).Seconds()))
		if seconds < defaultRetryAfter {
			seconds = defaultRetryAfter
		}
		return &RetryError{response.StatusCode, seconds}
	}
	return &RetryError{response.StatusCode, defaultRetryAfter}
}

/*
MappingError is returned when a response body cannot be turned into
resources: the document is not valid JSON, a resource object has no 'type' or
one of an unexpected type, or its attributes are not an object.
*/
type MappingError struct {
	Type   string
	Id     string
	Reason string
	Err    error
}

func (e *MappingError) Error() string {
	target := e.Type
	if e.Id != "" {
		target = fmt.Sprintf("%s:%s", e.Type, e.Id)
	}
	message := "invalid {json:api} document"
	if target != "" {
		message = fmt.Sprintf("%s for '%s'", message, target)
	}
	if e.Reason != "" {
		message = fmt.Sprintf("%s: %s", message, e.Reason)
	}
	if e.Err != nil {
		message = fmt.Sprintf("%s: %s", message, e.Err)
	}
	return message
}

func (e *MappingError) Unwrap() error {
	return e.Err
}
