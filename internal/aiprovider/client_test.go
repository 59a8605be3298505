package aiprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSignedStreamURL_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/streams/signed-url", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"wss://agent.example.com/stream/abc","expiresAt":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "agent-1")
	url, err := c.GetSignedStreamURL(context.Background(), SignedURLRequest{CampaignID: "camp-1", ContactID: "contact-2"})
	require.NoError(t, err)
	assert.Equal(t, "wss://agent.example.com/stream/abc", url)
}

func TestGetSignedStreamURL_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "agent-1")
	_, err := c.GetSignedStreamURL(context.Background(), SignedURLRequest{})
	assert.Error(t, err)
}

func TestGetSignedStreamURL_MissingURLInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", "agent-1")
	_, err := c.GetSignedStreamURL(context.Background(), SignedURLRequest{})
	assert.ErrorContains(t, err, "missing url")
}
