package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/model"
)

type memStore struct {
	entries []model.HistoryEntry
	err     error
}

func (m *memStore) AddToHistory(entry model.HistoryEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestRedactHeaders(t *testing.T) {
	got := RedactHeaders(map[string]string{
		"Authorization": "Bearer abc",
		"X-Api-Key":     "k",
		"Accept":        "application/json",
	})

	assert.Equal(t, Redacted, got["Authorization"])
	assert.Equal(t, Redacted, got["X-Api-Key"])
	assert.Equal(t, "application/json", got["Accept"])
	assert.Nil(t, RedactHeaders(nil))
}

func TestSensitiveBody(t *testing.T) {
	assert.True(t, SensitiveBody(`{"Password":"x"}`))
	assert.True(t, SensitiveBody(`{"refresh_token":"x"}`))
	assert.False(t, SensitiveBody(`{"name":"x"}`))
	assert.False(t, SensitiveBody(""))
}

func TestRecorder_StoresRedactedEntry(t *testing.T) {
	store := &memStore{}
	next := engine.DispatcherFunc(func(ctx context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{
			Status:  200,
			Headers: map[string]string{"Set-Cookie": "sid=1", "Content-Type": "application/json"},
			Body:    `{"ok":true}`,
		}, nil
	})

	req := model.NewRequest("login", model.MethodPost, "https://api.test/login")
	req.Headers = []model.KeyValue{
		model.NewKeyValue("Authorization", "Bearer secret", true),
		model.NewKeyValue("X-Off", "1", false),
	}
	req.Body = `{"user":"a"}`

	resp, err := NewRecorder(next, store, nil).Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.Len(t, e.ID, 8)
	assert.Equal(t, model.MethodPost, e.Method)
	assert.Equal(t, "https://api.test/login", e.URL)
	assert.Equal(t, map[string]string{"Authorization": Redacted}, e.Headers)
	assert.Equal(t, `{"user":"a"}`, e.Body)
	require.NotNil(t, e.Response)
	assert.Equal(t, Redacted, e.Response.Headers["Set-Cookie"])
	// the caller's response is not redacted
	assert.Equal(t, "sid=1", resp.Headers["Set-Cookie"])
}

func TestRecorder_TransportErrorIsRecordedAndReturned(t *testing.T) {
	store := &memStore{}
	boom := errors.New("connection refused")
	next := engine.DispatcherFunc(func(ctx context.Context, req model.Request) (*model.Response, error) {
		return nil, boom
	})

	resp, err := NewRecorder(next, store, nil).Send(context.Background(), model.NewRequest("x", model.MethodGet, "https://down.test"))

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, resp)
	require.Len(t, store.entries, 1)
	assert.Nil(t, store.entries[0].Response)
}

func TestRecorder_StoreFailureIsSwallowed(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	next := engine.DispatcherFunc(func(ctx context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{Status: 204}, nil
	})

	resp, err := NewRecorder(next, store, nil).Send(context.Background(), model.NewRequest("x", model.MethodGet, "https://api.test"))

	require.NoError(t, err)
	assert.Equal(t, 204, resp.Status)
}

func TestRedactRequest_LeavesOriginalUntouched(t *testing.T) {
	req := model.NewRequest("login", model.MethodPost, "https://api.example.com/login")
	req.Headers = append(req.Headers,
		model.NewKeyValue("Authorization", "Bearer abc", true),
		model.NewKeyValue("Accept", "application/json", true),
	)

	got := RedactRequest(req)

	assert.Equal(t, Redacted, got.Headers[0].Value)
	assert.Equal(t, "application/json", got.Headers[1].Value)
	assert.Equal(t, "Bearer abc", req.Headers[0].Value)
}
