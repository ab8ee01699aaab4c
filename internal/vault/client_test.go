package vault

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/fetch"
)

type recordedPut struct {
	path        string
	contentType string
	auth        string
	body        string
}

// fakeVault answers PUT /vault/... with status and records every request.
type fakeVault struct {
	mu     sync.Mutex
	status int
	puts   []recordedPut
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.puts = append(f.puts, recordedPut{
		path:        r.URL.EscapedPath(),
		contentType: r.Header.Get("Content-Type"),
		auth:        r.Header.Get("Authorization"),
		body:        string(body),
	})
	status := f.status
	f.mu.Unlock()
	w.WriteHeader(status)
}

func newTestClient(t *testing.T, h http.Handler) (*Client, config.Settings) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := fetch.NewClient(srv.Client(), logger, fetch.WithSleep(func(context.Context, time.Duration) error { return nil }))

	s := config.DefaultSettings()
	s.APIURL = srv.URL
	s.APIKey = "secret"
	return NewClient(f, logger), s
}

func TestEncodePath(t *testing.T) {
	assert.Equal(t, "Clippings/My%20Note%3F.md", EncodePath("Clippings/My Note?.md"))
	assert.Equal(t, "a/b%23c/%E4%B8%AD.md", EncodePath("a/b#c/中.md"))
	assert.Equal(t, "Clippings/x.md", NotePath("Clippings", "x"))
	assert.Equal(t, "x.md", NotePath("", "x"))
}

func TestSaveNote_Success(t *testing.T) {
	fv := &fakeVault{status: http.StatusNoContent}
	c, s := newTestClient(t, fv)

	path, err := c.SaveNote(context.Background(), s, domain.Document{Filename: "My Note", Content: "# My Note"})
	require.NoError(t, err)
	assert.Equal(t, "Clippings/My Note.md", path)

	require.Len(t, fv.puts, 1)
	assert.Equal(t, "/vault/Clippings/My%20Note.md", fv.puts[0].path)
	assert.Equal(t, "text/markdown", fv.puts[0].contentType)
	assert.Equal(t, "Bearer secret", fv.puts[0].auth)
	assert.Equal(t, "# My Note", fv.puts[0].body)
}

func TestPutText_StatusClassification(t *testing.T) {
	tests := []struct {
		status  int
		kind    apperrors.Kind
		message string
	}{
		{http.StatusUnauthorized, apperrors.KindAuthenticationFailed, apperrors.MsgAuthFailed},
		{http.StatusNotFound, apperrors.KindPathNotFound, apperrors.MsgPathNotFound},
		{http.StatusBadGateway, apperrors.KindRemoteServerError, apperrors.MsgServerError},
		{http.StatusTeapot, apperrors.KindRequestFailed, "Failed to save (HTTP 418)"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			fv := &fakeVault{status: tt.status}
			c, s := newTestClient(t, fv)

			_, err := c.PutText(context.Background(), s, "Clippings/a.md", "x")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.Equal(t, tt.message, err.Error())
			assert.Len(t, fv.puts, 1, "HTTP status responses are not retried")
		})
	}
}

func TestAuthFailureMessageMentionsAPIKey(t *testing.T) {
	fv := &fakeVault{status: http.StatusUnauthorized}
	c, s := newTestClient(t, fv)
	_, err := c.SaveNote(context.Background(), s, domain.Document{Filename: "a", Content: "b"})
	assert.Contains(t, err.Error(), "check your API key")
}

func TestPutBinary_OmitsAuthWithoutKey(t *testing.T) {
	fv := &fakeVault{status: http.StatusOK}
	c, s := newTestClient(t, fv)
	s.APIKey = ""

	_, err := c.PutBinary(context.Background(), s, "Clippings/attachments/a_0.png", []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	require.Len(t, fv.puts, 1)
	assert.Empty(t, fv.puts[0].auth)
	assert.Equal(t, "image/png", fv.puts[0].contentType)
}

func TestPutText_UnreachableVault(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	var sleeps int
	f := fetch.NewClient(nil, logger, fetch.WithSleep(func(context.Context, time.Duration) error { sleeps++; return nil }))
	c := NewClient(f, logger)

	s := config.DefaultSettings()
	s.APIURL = "http://127.0.0.1:1"

	_, err := c.PutText(context.Background(), s, "a.md", "x")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransportUnreachable, apperrors.KindOf(err))
	assert.Equal(t, apperrors.MsgConnectionFailed, err.Error())
	assert.Equal(t, 2, sleeps, "text saves use three attempts")
}

func TestTestConnection(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c, s := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"authenticated":true,"service":"Obsidian Local REST API"}`))
		}))
		status, err := c.TestConnection(context.Background(), s.APIURL+"//", s.APIKey)
		require.NoError(t, err)
		assert.True(t, status.Authenticated)
		assert.Equal(t, "Obsidian Local REST API", status.Service)
	})

	t.Run("unauthorized", func(t *testing.T) {
		c, s := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		_, err := c.TestConnection(context.Background(), s.APIURL, "wrong")
		assert.True(t, apperrors.Is(err, apperrors.KindAuthenticationFailed))
	})

	t.Run("not json", func(t *testing.T) {
		c, s := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html></html>"))
		}))
		_, err := c.TestConnection(context.Background(), s.APIURL, "")
		assert.True(t, apperrors.Is(err, apperrors.KindRequestFailed))
	})

	t.Run("other status", func(t *testing.T) {
		c, s := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		_, err := c.TestConnection(context.Background(), s.APIURL, "")
		require.Error(t, err)
		assert.Equal(t, "HTTP 403", err.Error())
	})
}
