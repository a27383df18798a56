package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-odata-query/pkg/filter"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	base := []string{"odataq", "--schema", "testdata/schema.yaml", "--resource", "User"}
	err := app.Run(context.Background(), append(base, args...))
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := run(t, "parse", "Age ge 18 and substringof('o', UserName)")
	require.NoError(t, err)

	assert.Contains(t, out, "tree:   x => ")
	assert.Contains(t, out, "x.Age")
	assert.Contains(t, out, "type:   bool\n")
	assert.Contains(t, out, "filter: Age ge 18 and substringof('o', userName)\n")
}

func TestParseCommandErrors(t *testing.T) {
	_, err := run(t, "parse", "Age ge")
	assert.ErrorIs(t, err, filter.ErrGrammar)

	_, err = run(t, "parse", "Nope eq 1")
	assert.ErrorIs(t, err, filter.ErrType)

	_, err = run(t, "parse")
	require.Error(t, err)

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer, app.ErrWriter = &out, &errOut
	err = app.Run(context.Background(), []string{"odataq", "--schema", "testdata/schema.yaml", "--resource", "Missing", "parse", "true"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Missing"`)
}

func TestURICommand(t *testing.T) {
	out, err := run(t, "--url", "http://host/svc/Users", "uri",
		"--filter", "Orders/any(o: o/Qty gt 4)",
		"--orderby", "Age desc,UserName",
		"--select", "userName,Age",
		"--top", "5",
		"--expand", "Orders",
	)
	require.NoError(t, err)
	assert.Equal(t,
		"http://host/svc/Users?$filter=Orders/any(o:%20o/Qty%20gt%204)&$select=Age,userName&$top=5&$orderby=Age%20desc,userName&$expand=Orders\n",
		out)
}

func TestURICommandLowerCase(t *testing.T) {
	out, err := run(t, "--lowercase", "uri", "--filter", "username eq 'bob'", "--skip", "2")
	require.NoError(t, err)
	assert.Equal(t, "User?$filter=username%20eq%20'bob'&$skip=2\n", out)
}

func TestFetchCommand(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skiptoken") == "" {
			next := "http://" + r.Host + r.URL.Path + "?$skiptoken=1"
			_, _ = w.Write([]byte(`{"d":{"results":[{"userName":"bob","Age":20}],"__next":"` + next + `"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"d":{"results":[{"userName":"erin","Age":22}]}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--url", srv.URL+"/Users", "fetch", "--filter", "Age gt 18", "--select", "UserName")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], "$filter="))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Equal(t, []map[string]any{{"userName": "bob"}, {"userName": "erin"}}, rows)
}

func TestFetchCommandNoFollow(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"d":{"results":[{"userName":"bob","Age":20}],"__next":"http://` + r.Host + `/Users?$skiptoken=1"}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--url", srv.URL+"/Users", "fetch", "--no-follow")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, out, `"userName": "bob"`)
}

func TestFetchCommandServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"odata.error":{"code":"","message":{"lang":"en-US","value":"bad filter"}}}`))
	}))
	defer srv.Close()

	_, err := run(t, "--url", srv.URL+"/Users", "fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad filter")

	_, err = run(t, "fetch")
	require.EqualError(t, err, "flag --url is required")
}

func countTo(n int, failAt int) func(yield func(int, error) bool) {
	return func(yield func(int, error) bool) {
		for i := 0; i < n; i++ {
			if i == failAt {
				yield(0, errors.New("page 2: connection reset"))
				return
			}
			if !yield(i, nil) {
				return
			}
		}
	}
}

func marshalInt(i int) ([]byte, error) { return json.Marshal(i) }

func TestPrintRecordsInteractive(t *testing.T) {
	var out, prompt bytes.Buffer
	pg := newPager(&prompt, strings.NewReader("\nq\n"), 10)
	err := printRecords(&out, countTo(25, -1), marshalInt, pg)
	require.NoError(t, err)

	var got []int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got, 20)
	assert.Equal(t, 2, strings.Count(prompt.String(), "Press Enter"))
}

func TestPrintRecordsInteractiveEndOfInput(t *testing.T) {
	var out, prompt bytes.Buffer
	err := printRecords(&out, countTo(25, -1), marshalInt, newPager(&prompt, strings.NewReader(""), 10))
	require.NoError(t, err)

	var got []int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got, 25)
	assert.Equal(t, 1, strings.Count(prompt.String(), "Press Enter"))
}

func TestPrintRecordsFailure(t *testing.T) {
	var out bytes.Buffer
	err := printRecords(&out, countTo(25, 12), marshalInt, nil)
	require.EqualError(t, err, "page 2: connection reset")
	assert.Empty(t, out.String())

	// Streamed output is still a closed array.
	out.Reset()
	err = printRecords(&out, countTo(25, 12), marshalInt, newPager(io.Discard, strings.NewReader("\n"), 10))
	require.EqualError(t, err, "page 2: connection reset")
	var got []int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got, 12)
}
