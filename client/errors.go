package odataclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNilHTTPClient indicates a nil HTTP client was provided.
	ErrNilHTTPClient = errors.New("odataclient: http client cannot be nil")
	// ErrNotFound matches any *APIError for a 404 response under errors.Is.
	ErrNotFound = errors.New("odataclient: resource not found")
)

// APIError is a non-2xx response. Code, Message and Lang come from the
// service's OData error object when the body carries one; otherwise Message
// holds the trimmed body text.
type APIError struct {
	Status  int
	Code    string
	Message string
	Lang    string
	Inner   *InnerError
	// Version is the DataServiceVersion the service answered with.
	Version string
	Raw     []byte
}

// InnerError is the debugging detail a service may attach to an error.
// Internal holds the next exception in the chain.
type InnerError struct {
	Message    string      `json:"message"`
	Type       string      `json:"type"`
	StackTrace string      `json:"stacktrace"`
	Internal   *InnerError `json:"internalexception,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("odataclient: %d %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("odataclient: %d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("odataclient: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("odataclient: api error status=%d", e.Status)
}

// Is lets errors.Is match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.NotFound()
}

// Temporary reports whether the error may succeed if sent again: a server
// failure, a request timeout or throttling.
func (e *APIError) Temporary() bool {
	if e == nil {
		return false
	}
	switch e.Status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.Status >= 500 && e.Status < 600
}

// NotFound reports whether the server answered 404.
func (e *APIError) NotFound() bool {
	return e != nil && e.Status == http.StatusNotFound
}

// errorPayload covers the verbose ("error") and light ("odata.error") v3
// error shapes plus a plain {title,detail} object.
type errorPayload struct {
	Error      *odataError `json:"error"`
	LightError *odataError `json:"odata.error"`
	Title      string      `json:"title"`
	Detail     string      `json:"detail"`
}

type odataError struct {
	Code    string `json:"code"`
	Message struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"message"`
	Inner *InnerError `json:"innererror"`
}

func parseAPIError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{
		Status:  resp.StatusCode,
		Version: resp.Header.Get("DataServiceVersion"),
		Raw:     data,
	}
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	e := payload.Error
	if e == nil {
		e = payload.LightError
	}
	if e == nil {
		apiErr.Code = payload.Title
		apiErr.Message = payload.Detail
		return apiErr
	}
	apiErr.Code = e.Code
	apiErr.Message = e.Message.Value
	apiErr.Lang = e.Message.Lang
	apiErr.Inner = e.Inner
	return apiErr
}
