package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyhu26/post-woman/internal/model"
)

type captured struct {
	method string
	query  string
	header http.Header
	body   string
}

func echoServer(t *testing.T, status int, respBody string) (*httptest.Server, chan captured) {
	t.Helper()
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- captured{method: r.Method, query: r.URL.RawQuery, header: r.Header.Clone(), body: string(b)}
		w.Header().Set("X-Trace", "t-1")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSend_BuildsRequest(t *testing.T) {
	srv, got := echoServer(t, http.StatusCreated, `{"ok":true}`)

	req := model.NewRequest("create", model.MethodPost, srv.URL+"/items?existing=1")
	req.Headers = []model.KeyValue{
		model.NewKeyValue("X-Api-Key", "k", true),
		model.NewKeyValue("X-Disabled", "nope", false),
	}
	req.Params = []model.KeyValue{
		model.NewKeyValue("page", "2", true),
		model.NewKeyValue("skip", "me", false),
	}
	req.Body = `{"name":"x"}`

	resp, err := NewClient().Send(context.Background(), req)
	require.NoError(t, err)

	c := <-got
	assert.Equal(t, "POST", c.method)
	assert.Contains(t, c.query, "existing=1")
	assert.Contains(t, c.query, "page=2")
	assert.NotContains(t, c.query, "skip")
	assert.Equal(t, "k", c.header.Get("X-Api-Key"))
	assert.Empty(t, c.header.Get("X-Disabled"))
	assert.Equal(t, "application/json", c.header.Get("Content-Type"))
	assert.Equal(t, `{"name":"x"}`, c.body)

	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, "t-1", resp.Headers["X-Trace"])
	assert.GreaterOrEqual(t, resp.Time, int64(0))
}

func TestSend_GetDropsBody(t *testing.T) {
	srv, got := echoServer(t, http.StatusOK, "")

	req := model.NewRequest("list", model.MethodGet, srv.URL)
	req.Body = "ignored"
	_, err := NewClient().Send(context.Background(), req)
	require.NoError(t, err)

	c := <-got
	assert.Empty(t, c.body)
	assert.Empty(t, c.header.Get("Content-Type"))
}

func TestSend_KeepsExplicitContentType(t *testing.T) {
	srv, got := echoServer(t, http.StatusOK, "")

	req := model.NewRequest("form", model.MethodPut, srv.URL)
	req.Headers = []model.KeyValue{model.NewKeyValue("Content-Type", "text/plain", true)}
	req.Body = "hello"
	_, err := NewClient().Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "text/plain", (<-got).header.Get("Content-Type"))
}

func TestSend_ErrorStatusIsNotAnError(t *testing.T) {
	srv, _ := echoServer(t, http.StatusNotFound, "missing")

	resp, err := NewClient().Send(context.Background(), model.NewRequest("x", model.MethodGet, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, "missing", resp.Body)
}

func TestSend_TruncatesLargeBodies(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, strings.Repeat("a", 100))

	resp, err := NewClient(WithMaxResponseSize(10)).Send(context.Background(), model.NewRequest("x", model.MethodGet, srv.URL))
	require.NoError(t, err)
	assert.Len(t, resp.Body, 10)
}

func TestSend_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	req := model.NewRequest("down", model.MethodGet, url)

	_, err := NewClient().Send(context.Background(), req)
	assert.Error(t, err)

	resp, err := NewClient(WithTransportErrorResponses(true)).Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, model.TransportErrorStatusText, resp.StatusText)
	assert.NotEmpty(t, resp.Body)
	assert.True(t, resp.TransportFailure())
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(WithTimeout(50*time.Millisecond)).Send(context.Background(), model.NewRequest("slow", model.MethodGet, srv.URL))
	assert.Error(t, err)
}

func TestValidateURL(t *testing.T) {
	c := NewClient()
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/api", false},
		{"http://10.0.0.5/internal", false},
		{"http://localhost:8080", false},
		{"ftp://example.com/file", true},
		{"https:///nohost", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://metadata.google.internal/", true},
		{"://bad", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := c.validateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateOrReservedHost(t *testing.T) {
	assert.True(t, isPrivateOrReservedHost("192.168.1.10"))
	assert.True(t, isPrivateOrReservedHost("172.20.0.1"))
	assert.True(t, isPrivateOrReservedHost("169.254.1.1"))
	assert.True(t, isPrivateOrReservedHost("0.0.0.0"))
	assert.False(t, isPrivateOrReservedHost("8.8.8.8"))
	assert.False(t, isPrivateOrReservedHost("example.com"))
}
