package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, authURL, chatURL, videoURL string) *Gateway {
	t.Helper()
	g, err := New(Config{AuthServiceURL: authURL, ChatServiceURL: chatURL, VideoServiceURL: videoURL})
	require.NoError(t, err)
	return g
}

func TestHealth_ReportsBackends(t *testing.T) {
	g := newTestGateway(t, "http://localhost:8081", "http://localhost:8082", "http://localhost:8083")
	router := g.Router([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"service":"gateway"`)
}

func TestRouting_StripsAndPrependsAuthPrefix(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g := newTestGateway(t, upstream.URL, "http://localhost:8082", "http://localhost:8083")
	router := g.Router([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "/auth/login", gotPath)
}

func TestRouting_StripsChatPrefixWithoutPrepend(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g := newTestGateway(t, "http://localhost:8081", upstream.URL, "http://localhost:8083")
	router := g.Router([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "/rooms", gotPath)
}

func TestUnreachableBackend_Returns503(t *testing.T) {
	g := newTestGateway(t, "http://127.0.0.1:1", "http://localhost:8082", "http://localhost:8083")
	router := g.Router([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend":"auth"`)
}

func TestNoRoute_NonUpgradeReturns404(t *testing.T) {
	g := newTestGateway(t, "http://localhost:8081", "http://localhost:8082", "http://localhost:8083")
	router := g.Router([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocsIndexAndService(t *testing.T) {
	g := newTestGateway(t, "http://localhost:8081", "http://localhost:8082", "http://localhost:8083")
	router := g.Router([]string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/api-docs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api-docs/chat", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api-docs/bogus", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
