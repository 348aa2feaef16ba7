package dialogs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/netchat/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		BaseURL:    srv.URL + "/api/1.0/",
		APIKey:     "key-123",
		Cookie:     "ASP.NET_SessionId=abc",
		HTTPClient: srv.Client(),
	}, discardLogger())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{}, discardLogger())

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, httpClientTimeout, c.httpClient.Timeout)
	assert.NotNil(t, c.httpClient.CheckRedirect)
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("API-KEY"))
		assert.Equal(t, "ASP.NET_SessionId=abc", r.Header.Get("Cookie"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "/api/1.0/dialogs", r.URL.Path)
		_, _ = io.WriteString(w, `[]`)
	})

	got, err := c.Dialogs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_Dialogs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = io.WriteString(w, `[{"id":2,"userName":"bob","hasNewMessages":true,"newMessagesCount":3,
			"lastDialogActivityDate":"2021-03-10T12:34:56.12","photos":{"small":"https://img/s.png","large":null}}]`)
	})

	got, err := c.Dialogs(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := got[0]
	assert.Equal(t, int64(2), d.ID)
	assert.Equal(t, "bob", d.UserName)
	assert.True(t, d.HasNewMessages)
	assert.Equal(t, 3, d.NewMessagesCount)
	assert.Equal(t, "https://img/s.png", d.Photo)
	assert.True(t, d.LastActivity.Equal(time.Date(2021, 3, 10, 12, 34, 56, 120000000, time.UTC)))
}

func TestClient_Messages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/1.0/dialogs/7/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))
		_, _ = io.WriteString(w, `{"items":[
			{"id":"a1","body":"hi","addedAt":"2021-03-10T12:00:00","senderId":7,"senderName":"alice","recipientId":1,"viewed":true},
			{"id":"a2","body":"caf\u00e9","addedAt":"2021-03-10T12:01:00Z","senderId":1,"senderName":"me","recipientId":7,"viewed":false}
		],"totalCount":2,"error":null}`)
	})

	got, err := c.Messages(context.Background(), 7, 2, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "alice", got[0].Sender)
	assert.Equal(t, int64(7), got[0].SenderID)
	assert.Equal(t, int64(1), got[0].RecipientID)
	assert.True(t, got[0].Viewed)
	assert.True(t, got[0].Timestamp.Equal(time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "caf\u00e9", got[1].Body)
}

func TestClient_MessagesErrorField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[],"totalCount":0,"error":"dialog not found"}`)
	})

	_, err := c.Messages(context.Background(), 7, 1, 10)

	var re *apperrors.RequestError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, apperrors.ErrAPIResponse)
	assert.Contains(t, err.Error(), "dialog not found")
	assert.False(t, re.Transient)
}

func TestClient_MessagesMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no items", body: `{"totalCount":0}`},
		{name: "items not a list", body: `{"items":{}}`},
		{name: "wrong field type", body: `{"items":[{"id":"a","senderId":"seven"}]}`},
		{name: "missing id", body: `{"items":[{"body":"x"}]}`},
		{name: "bad timestamp", body: `{"items":[{"id":"a","addedAt":"yesterday"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Messages(context.Background(), 7, 1, 10)

			var re *apperrors.RequestError
			require.ErrorAs(t, err, &re)
			assert.True(t, apperrors.IsDecode(err))
		})
	}
}

func TestClient_SendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/1.0/dialogs/7/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"body": "hello"}, body)

		_, _ = io.WriteString(w, `{"data":{"message":{"id":"x"}},"messages":[],"resultCode":0}`)
	})

	require.NoError(t, c.SendMessage(context.Background(), 7, "hello"))
}

func TestClient_MessageEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		call   func(c *Client) error
	}{
		{
			name: "start dialog", method: http.MethodPut, path: "/api/1.0/dialogs/7",
			call: func(c *Client) error { return c.StartDialog(context.Background(), 7) },
		},
		{
			name: "remove", method: http.MethodDelete, path: "/api/1.0/dialogs/messages/m-1",
			call: func(c *Client) error { return c.RemoveMessage(context.Background(), "m-1") },
		},
		{
			name: "restore", method: http.MethodPut, path: "/api/1.0/dialogs/messages/m-1/restore",
			call: func(c *Client) error { return c.RestoreMessage(context.Background(), "m-1") },
		},
		{
			name: "spam", method: http.MethodPost, path: "/api/1.0/dialogs/messages/m-1/spam",
			call: func(c *Client) error { return c.MarkSpam(context.Background(), "m-1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.method, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				_, _ = io.WriteString(w, `{"resultCode":0,"messages":[],"data":{}}`)
			})

			require.NoError(t, tt.call(c))
		})
	}
}

func TestClient_NonZeroResultCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"resultCode":1,"messages":["You are not authorized"],"data":{}}`)
	})

	err := c.RemoveMessage(context.Background(), "m-1")

	var re *apperrors.RequestError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "removing message", re.Op)
	assert.Equal(t, http.StatusOK, re.Status)
	assert.False(t, re.Transient)
	assert.ErrorIs(t, err, apperrors.ErrAPIResponse)
	assert.Contains(t, err.Error(), "You are not authorized")
}

func TestClient_ResultCodeWithoutMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"resultCode":10,"messages":[]}`)
	})

	err := c.StartDialog(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resultCode 10")
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"message":"nope"}`)
			})

			err := c.SendMessage(context.Background(), 7, "x")

			var re *apperrors.RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.status, re.Status)
			assert.Equal(t, tt.transient, re.Transient)
			assert.Equal(t, tt.transient, apperrors.IsTransient(err))
			assert.ErrorIs(t, err, apperrors.ErrAPIRequest)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_ErrorBodySanitized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad\x00\x1b[31mthing"+strings.Repeat("x", 500))
	})

	err := c.StartDialog(context.Background(), 7)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "\x1b")
	assert.Contains(t, err.Error(), "bad??[31mthing")
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, HTTPClient: srv.Client()}, discardLogger())

	_, err := c.Dialogs(context.Background())

	var re *apperrors.RequestError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Transient)
	assert.Zero(t, re.Status)
	assert.ErrorIs(t, err, apperrors.ErrAPIRequest)
}

func TestClient_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Dialogs(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSameHostRedirectPolicy(t *testing.T) {
	orig, err := http.NewRequest(http.MethodGet, "https://api.example.com/a", nil)
	require.NoError(t, err)

	same, err := http.NewRequest(http.MethodGet, "https://api.example.com/b", nil)
	require.NoError(t, err)

	other, err := http.NewRequest(http.MethodGet, "https://evil.example.net/b", nil)
	require.NoError(t, err)

	assert.NoError(t, sameHostRedirectPolicy(same, []*http.Request{orig}))
	assert.Error(t, sameHostRedirectPolicy(other, []*http.Request{orig}))

	via := make([]*http.Request, maxRedirects)
	for i := range via {
		via[i] = orig
	}

	assert.Error(t, sameHostRedirectPolicy(same, via))
}

func TestSanitizeResponseBody(t *testing.T) {
	assert.Equal(t, "ok\ttab", sanitizeResponseBody([]byte("ok\ttab")))
	assert.Equal(t, "a?b", sanitizeResponseBody([]byte{'a', 0xff, 'b'}))
	assert.Len(t, sanitizeResponseBody([]byte(strings.Repeat("y", 1000))), 256)
}
