package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/login", RateLimit(NewMemoryRateStore(), 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitDisabledWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/login", RateLimit(nil, 1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMemoryRateStoreWindowReset(t *testing.T) {
	store := NewMemoryRateStore().(*memoryRateStore)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	count, _, err := store.Increment(t.Context(), "key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, _, err = store.Increment(t.Context(), "key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	now = now.Add(2 * time.Minute)
	count, _, err = store.Increment(t.Context(), "key", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
