package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *gin.Engine) {
	svc := NewService(NewAccountStore(), NewTokenIssuer("test-secret"))
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc.Routes(router)
	return svc, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestRegisterThenLogin(t *testing.T) {
	_, router := newTestService()

	rec := doJSON(t, router, http.MethodPost, "/auth/register", registerRequest{
		Email: "alice@example.com", Password: "correct horse battery staple", DisplayName: "Alice",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	registerData := decodeData(t, rec)
	require.NotEmpty(t, registerData["token"])

	rec = doJSON(t, router, http.MethodPost, "/auth/register", registerRequest{
		Email: "alice@example.com", Password: "different",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/login", loginRequest{
		Email: "alice@example.com", Password: "correct horse battery staple",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	loginData := decodeData(t, rec)
	token, _ := loginData["token"].(string)
	require.NotEmpty(t, token)

	rec = doJSON(t, router, http.MethodPost, "/auth/login", loginRequest{
		Email: "alice@example.com", Password: "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	meData := decodeData(t, rec)
	assert.Equal(t, "alice@example.com", meData["email"])

	rec = doJSON(t, router, http.MethodGet, "/auth/verify", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/verify", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a revoked token must fail verification")
}

func TestGoogleProvisionsAccountOnFirstLogin(t *testing.T) {
	_, router := newTestService()

	rec := doJSON(t, router, http.MethodPost, "/auth/google", googleRequest{Email: "bob@example.com", DisplayName: "Bob"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeData(t, rec)
	firstUser, _ := first["user"].(map[string]any)

	rec = doJSON(t, router, http.MethodPost, "/auth/google", googleRequest{Email: "bob@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeData(t, rec)
	secondUser, _ := second["user"].(map[string]any)

	assert.Equal(t, firstUser["userId"], secondUser["userId"], "a repeat google login reuses the provisioned account")
}

func TestMeRejectsMissingToken(t *testing.T) {
	_, router := newTestService()
	rec := doJSON(t, router, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
