package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRouter(resolver *Resolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(resolver))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account_id": AccountID(c)})
	})
	return r
}

func TestMiddlewareAcceptsAPIKeyHeader(t *testing.T) {
	key, hash, _, err := GenerateAPIKey()
	require.NoError(t, err)

	repo := new(MockRepository)
	repo.On("FindByKeyHash", mock.Anything, hash).Return(&ApiCredential{
		ID:        uuid.New(),
		AccountID: "acct-9",
		IsActive:  true,
	}, nil)
	repo.On("TouchLastUsed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	router := newTestRouter(newTestResolver(repo))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-API-Key", key)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acct-9")
}

func TestMiddlewareAcceptsBearerKey(t *testing.T) {
	key, hash, _, err := GenerateAPIKey()
	require.NoError(t, err)

	repo := new(MockRepository)
	repo.On("FindByKeyHash", mock.Anything, hash).Return(&ApiCredential{
		ID:        uuid.New(),
		AccountID: "acct-9",
		IsActive:  true,
	}, nil)
	repo.On("TouchLastUsed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	router := newTestRouter(newTestResolver(repo))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareRejectsMissingCredentials(t *testing.T) {
	router := newTestRouter(newTestResolver(new(MockRepository)))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsMalformedAuthorization(t *testing.T) {
	router := newTestRouter(newTestResolver(new(MockRepository)))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
