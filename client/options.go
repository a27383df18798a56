package odataclient

import (
	"net/http"
	"time"
)

// ClientOption configures a Client during construction.
type ClientOption func(*Client) error

// Format is a JSON payload format, sent as the Accept header.
type Format string

// JSON formats of OData v3. RecordDecoder reads all of them.
const (
	Verbose    Format = "application/json;odata=verbose"
	Light      Format = "application/json;odata=minimalmetadata"
	NoMetadata Format = "application/json;odata=nometadata"
)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return ErrNilHTTPClient
		}
		c.httpClient = httpClient
		return nil
	}
}

// WithFormat selects the response format. The default is Verbose.
func WithFormat(f Format) ClientOption {
	return WithDefaultHeader("Accept", string(f))
}

// WithMaxDataServiceVersion caps the protocol version the service may
// answer with, e.g. "2.0" for a service that rejects 3.0 requests.
func WithMaxDataServiceVersion(v string) ClientOption {
	return WithDefaultHeader("MaxDataServiceVersion", v)
}

// WithDefaultHeader sets a header on every request, replacing any built-in
// value of the same name. An empty key is ignored.
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) error {
		if key == "" {
			return nil
		}
		if c.defaultHeaders == nil {
			c.defaultHeaders = make(http.Header)
		}
		c.defaultHeaders.Set(key, value)
		return nil
	}
}

// WithLogger registers a logger for request and failure events.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithTimeout bounds each request, including reading the body.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return nil
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
		return nil
	}
}
