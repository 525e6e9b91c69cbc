// ABOUTME: Tests for the HTTP auth middleware
// ABOUTME: Header and query extraction, identity propagation, rejections

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToken(t *testing.T) {
	newReq := func(header, query string) *http.Request {
		url := "/chat"
		if query != "" {
			url += "?token=" + query
		}
		r := httptest.NewRequest(http.MethodGet, url, nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return r
	}

	token, errMsg := ExtractToken(newReq("Bearer abc", ""))
	assert.Empty(t, errMsg)
	assert.Equal(t, "abc", token)

	token, errMsg = ExtractToken(newReq("", "xyz"))
	assert.Empty(t, errMsg)
	assert.Equal(t, "xyz", token)

	// The header wins over the query parameter.
	token, errMsg = ExtractToken(newReq("Bearer abc", "xyz"))
	assert.Empty(t, errMsg)
	assert.Equal(t, "abc", token)

	_, errMsg = ExtractToken(newReq("Basic abc", ""))
	assert.Equal(t, "invalid authorization header format", errMsg)

	_, errMsg = ExtractToken(newReq("Bearer ", ""))
	assert.Equal(t, "empty token", errMsg)

	_, errMsg = ExtractToken(newReq("", ""))
	assert.Equal(t, "missing credentials", errMsg)
}

func TestMiddleware_ValidToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	token, err := v.Generate("user-123", time.Hour)
	require.NoError(t, err)

	var seen *Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "user-123", seen.UserID)
}

func TestMiddleware_RejectsInvalidToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFromContext_Absent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, FromContext(req.Context()))
}
