package odataclient_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	odataclient "github.com/robert-malhotra/go-odata-query/client"
	"github.com/robert-malhotra/go-odata-query/pkg/schema"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...odataclient.ClientOption) (*odataclient.Client, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]odataclient.ClientOption{odataclient.WithHTTPClient(server.Client())}, opts...)
	client, err := odataclient.New(opts...)
	if err != nil {
		t.Fatalf("New client: %v", err)
	}
	return client, server.URL
}

type recordingLogger struct {
	debug, errors int
}

func (l *recordingLogger) Debugf(string, ...any) { l.debug++ }
func (l *recordingLogger) Errorf(string, ...any) { l.errors++ }

func TestSendAppliesDefaultHeaders(t *testing.T) {
	var got http.Header
	var gotURI string
	logger := &recordingLogger{}
	client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotURI = r.URL.RequestURI()
		w.Write([]byte(`{"d":[]}`))
	}, odataclient.WithDefaultHeader("X-Trace", "abc"), odataclient.WithLogger(logger))

	data, err := client.Send(context.Background(), "", base+"/Users?$top=1", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(data) != `{"d":[]}` {
		t.Fatalf("unexpected body %q", data)
	}
	if gotURI != "/Users?$top=1" {
		t.Fatalf("unexpected request uri %q", gotURI)
	}
	if got.Get("Accept") != "application/json;odata=verbose" {
		t.Fatalf("unexpected accept header %q", got.Get("Accept"))
	}
	if got.Get("MaxDataServiceVersion") != "3.0" {
		t.Fatalf("missing MaxDataServiceVersion header")
	}
	if got.Get("X-Trace") != "abc" {
		t.Fatalf("missing default header")
	}
	if logger.debug != 1 || logger.errors != 0 {
		t.Fatalf("unexpected log calls debug=%d errors=%d", logger.debug, logger.errors)
	}
}

func TestSendPostsBody(t *testing.T) {
	client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		w.Write(buf.Bytes())
	})

	data, err := client.Send(context.Background(), http.MethodPost, base, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("body not echoed: %q", data)
	}
}

func TestSendDecodesContentEncoding(t *testing.T) {
	payload := []byte(`{"d":{"results":[]}}`)
	cases := map[string]func() []byte{
		"gzip": func() []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			zw.Write(payload)
			zw.Close()
			return buf.Bytes()
		},
		"zstd": func() []byte {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				t.Fatalf("zstd writer: %v", err)
			}
			defer enc.Close()
			return enc.EncodeAll(payload, nil)
		},
	}
	for encoding, compress := range cases {
		t.Run(encoding, func(t *testing.T) {
			body := compress()
			client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				w.Write(body)
			})
			data, err := client.Send(context.Background(), http.MethodGet, base, nil)
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if !bytes.Equal(data, payload) {
				t.Fatalf("unexpected body %q", data)
			}
		})
	}
}

func TestSendMapsErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		code      string
		message   string
		lang      string
		text      string
		temporary bool
	}{
		{
			name:    "verbose",
			status:  http.StatusNotFound,
			body:    `{"error":{"code":"","message":{"lang":"en-US","value":"Resource not found for the segment 'Users'."}}}`,
			message: "Resource not found for the segment 'Users'.",
			lang:    "en-US",
			text:    "odataclient: 404: Resource not found for the segment 'Users'.",
		},
		{
			name:    "light",
			status:  http.StatusBadRequest,
			body:    `{"odata.error":{"code":"BadFilter","message":{"lang":"de-DE","value":"Syntax error at position 3."}}}`,
			code:    "BadFilter",
			message: "Syntax error at position 3.",
			lang:    "de-DE",
			text:    "odataclient: 400 BadFilter: Syntax error at position 3.",
		},
		{
			name:      "problem",
			status:    http.StatusServiceUnavailable,
			body:      `{"status":503,"title":"Unavailable","detail":"try later"}`,
			code:      "Unavailable",
			message:   "try later",
			text:      "odataclient: 503 Unavailable: try later",
			temporary: true,
		},
		{
			name:      "plain",
			status:    http.StatusInternalServerError,
			body:      "boom\n",
			message:   "boom",
			text:      "odataclient: 500: boom",
			temporary: true,
		},
		{
			name:      "throttled",
			status:    http.StatusTooManyRequests,
			text:      "odataclient: api error status=429",
			temporary: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger := &recordingLogger{}
			client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("DataServiceVersion", "3.0;")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}, odataclient.WithLogger(logger))

			_, err := client.Send(context.Background(), http.MethodGet, base, nil)
			var apiErr *odataclient.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tc.status {
				t.Fatalf("unexpected status %d", apiErr.Status)
			}
			if apiErr.Code != tc.code || apiErr.Message != tc.message || apiErr.Lang != tc.lang {
				t.Fatalf("unexpected code=%q message=%q lang=%q", apiErr.Code, apiErr.Message, apiErr.Lang)
			}
			if apiErr.Error() != tc.text {
				t.Fatalf("unexpected error text %q", apiErr.Error())
			}
			if apiErr.Version != "3.0;" {
				t.Fatalf("unexpected version %q", apiErr.Version)
			}
			notFound := tc.status == http.StatusNotFound
			if apiErr.NotFound() != notFound || errors.Is(err, odataclient.ErrNotFound) != notFound {
				t.Fatalf("NotFound() = %v, errors.Is = %v", apiErr.NotFound(), errors.Is(err, odataclient.ErrNotFound))
			}
			if apiErr.Temporary() != tc.temporary {
				t.Fatalf("Temporary() = %v", apiErr.Temporary())
			}
			if logger.errors != 1 {
				t.Fatalf("expected one error log, got %d", logger.errors)
			}
		})
	}
}

func TestSendKeepsInnerError(t *testing.T) {
	client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"","message":{"lang":"en-US","value":"An error occurred."},` +
			`"innererror":{"message":"outer","type":"System.Exception","stacktrace":"at A()",` +
			`"internalexception":{"message":"inner","type":"System.IO.IOException","stacktrace":""}}}}`))
	})

	_, err := client.Send(context.Background(), http.MethodGet, base, nil)
	var apiErr *odataclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Inner == nil || apiErr.Inner.Message != "outer" || apiErr.Inner.StackTrace != "at A()" {
		t.Fatalf("unexpected inner error %+v", apiErr.Inner)
	}
	if apiErr.Inner.Internal == nil || apiErr.Inner.Internal.Type != "System.IO.IOException" {
		t.Fatalf("unexpected internal exception %+v", apiErr.Inner.Internal)
	}
}

func TestFormatOptions(t *testing.T) {
	var got http.Header
	client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"value":[]}`))
	}, odataclient.WithFormat(odataclient.Light), odataclient.WithMaxDataServiceVersion("2.0"))

	if _, err := client.Send(context.Background(), http.MethodGet, base, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Get("Accept") != "application/json;odata=minimalmetadata" {
		t.Fatalf("unexpected accept header %q", got.Get("Accept"))
	}
	if got.Get("MaxDataServiceVersion") != "2.0" {
		t.Fatalf("unexpected MaxDataServiceVersion %q", got.Get("MaxDataServiceVersion"))
	}
	if got.Get("DataServiceVersion") != "3.0" {
		t.Fatalf("unexpected DataServiceVersion %q", got.Get("DataServiceVersion"))
	}
}

func TestSendHonoursContext(t *testing.T) {
	client, base := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.Send(ctx, http.MethodGet, base, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewRejectsNilHTTPClient(t *testing.T) {
	if _, err := odataclient.New(odataclient.WithHTTPClient(nil)); !errors.Is(err, odataclient.ErrNilHTTPClient) {
		t.Fatalf("expected ErrNilHTTPClient, got %v", err)
	}
}

var (
	addressSchema = schema.MustNew("Address",
		schema.Field{Name: "City", WireName: "city", Type: schema.Of(schema.String)},
	)
	userSchema = schema.MustNew("User",
		schema.Field{Name: "UserName", WireName: "userName", Type: schema.Of(schema.String)},
		schema.Field{Name: "Age", Type: schema.Of(schema.Int32)},
		schema.Field{Name: "Big", Type: schema.Of(schema.Int64)},
		schema.Field{Name: "Joined", Type: schema.NullableOf(schema.DateTime)},
		schema.Field{Name: "Address", Type: schema.ObjectOf(addressSchema)},
		schema.Field{Name: "Tags", Type: schema.CollectionOf(schema.Of(schema.String))},
	)
)

func TestRecordDecoderMany(t *testing.T) {
	dec := odataclient.RecordDecoder{Schema: userSchema}
	bob := `{"__metadata":{"uri":"Users(1)"},"userName":"bob","Age":20,"Big":"9007199254740993","Joined":"/Date(1357084800000)/","Address":{"city":"Oslo"},"Tags":{"results":["go"]},"Orders":{"__deferred":{"uri":"x"}}}`
	cases := map[string]string{
		"verbose results": `{"d":{"results":[` + bob + `],"__next":"http://host/Users?$skiptoken=1"}}`,
		"verbose array":   `{"d":[` + bob + `]}`,
		"light":           `{"odata.metadata":"m","value":[` + bob + `]}`,
		"bare array":      `[` + bob + `]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			recs, err := dec.Many([]byte(payload))
			if err != nil {
				t.Fatalf("Many: %v", err)
			}
			if len(recs) != 1 {
				t.Fatalf("expected one record, got %d", len(recs))
			}
			rec := recs[0]
			if v, _ := rec.Get("UserName"); v != "bob" {
				t.Fatalf("unexpected name %v", v)
			}
			if v, _ := rec.Get("Age"); v != int32(20) {
				t.Fatalf("unexpected age %#v", v)
			}
			if v, _ := rec.Get("Big"); v != int64(9007199254740993) {
				t.Fatalf("unexpected big %#v", v)
			}
			joined, _ := rec.Get("Joined")
			if !joined.(time.Time).Equal(time.Date(2013, 1, 2, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("unexpected joined %v", joined)
			}
			addr, _ := rec.Get("Address")
			if city, _ := addr.(*schema.Record).Get("City"); city != "Oslo" {
				t.Fatalf("unexpected city %v", city)
			}
			tags, _ := rec.Get("Tags")
			if len(tags.([]any)) != 1 {
				t.Fatalf("unexpected tags %v", tags)
			}
		})
	}
}

func TestRecordDecoderOne(t *testing.T) {
	dec := odataclient.RecordDecoder{Schema: userSchema}
	for _, payload := range []string{
		`{"d":{"userName":"carol","Age":30}}`,
		`{"userName":"carol","Age":30}`,
		`[{"userName":"carol","Age":30}]`,
	} {
		rec, err := dec.One([]byte(payload))
		if err != nil {
			t.Fatalf("One(%s): %v", payload, err)
		}
		if v, _ := rec.Get("UserName"); v != "carol" {
			t.Fatalf("One(%s): unexpected name %v", payload, v)
		}
	}
	if _, err := dec.One([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty array")
	}
	if _, err := dec.Many([]byte(`{"d":{"results":[{"Age":"x"}]}}`)); err == nil {
		t.Fatalf("expected coercion error")
	}
}

func TestRecordDecoderNextLink(t *testing.T) {
	dec := odataclient.RecordDecoder{Schema: userSchema}
	if got := dec.NextLink([]byte(`{"d":{"results":[],"__next":"n1"}}`)); got != "n1" {
		t.Fatalf("verbose next link %q", got)
	}
	if got := dec.NextLink([]byte(`{"value":[],"odata.nextLink":"n2"}`)); got != "n2" {
		t.Fatalf("light next link %q", got)
	}
	if got := dec.NextLink([]byte(`{"d":[]}`)); got != "" {
		t.Fatalf("unexpected next link %q", got)
	}
}
