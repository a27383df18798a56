package odataclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Client sends OData requests over HTTP. It implements query.Transport.
type Client struct {
	httpClient     *http.Client
	defaultHeaders http.Header
	logger         Logger
}

// New constructs a Client with provided options.
func New(opts ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient:     &http.Client{},
		defaultHeaders: make(http.Header),
	}
	c.defaultHeaders.Set("Accept", string(Verbose))
	c.defaultHeaders.Set("Accept-Encoding", "gzip, zstd, deflate")
	c.defaultHeaders.Set("DataServiceVersion", "3.0")
	c.defaultHeaders.Set("MaxDataServiceVersion", "3.0")
	c.defaultHeaders.Set("User-Agent", "go-odata-query/0.1")

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.httpClient == nil {
		return nil, ErrNilHTTPClient
	}
	return c, nil
}

// Send performs one request and returns the decoded response body. Non-2xx
// responses are returned as *APIError.
func (c *Client) Send(ctx context.Context, method, uri string, body []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readBody(resp, 0)
}

func (c *Client) newRequest(ctx context.Context, method, uri string, body []byte) (*http.Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range c.defaultHeaders {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.logger != nil {
		c.logger.Debugf("odataclient: %s %s", req.Method, req.URL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("odataclient: %s %s: %w", req.Method, req.URL, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, readErr := readBody(resp, 1<<20)
	if readErr != nil {
		return nil, readErr
	}
	apiErr := parseAPIError(resp, data)
	if c.logger != nil {
		c.logger.Errorf("odataclient: request failed status=%d", resp.StatusCode)
	}
	return nil, apiErr
}

// readBody reads the response body, undoing any content encoding. A
// positive limit caps the bytes read.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("odataclient: gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("odataclient: zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		fr := flate.NewReader(r)
		defer fr.Close()
		r = fr
	default:
		return nil, fmt.Errorf("odataclient: unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("odataclient: read body: %w", err)
	}
	return data, nil
}
