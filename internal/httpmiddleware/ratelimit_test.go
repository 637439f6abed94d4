package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"checkin/internal/testutil"
)

func TestTokenBucket_LimitsAndRefills(t *testing.T) {
	clock := testutil.NewClock(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	l := NewTokenBucket(3, 60)
	l.now = clock.Now

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("kiosk-a"), "request %d", i)
	}
	assert.False(t, l.allow("kiosk-a"))
	assert.True(t, l.allow("kiosk-b"), "keys are independent")

	clock.Advance(time.Second)
	assert.True(t, l.allow("kiosk-a"))
	assert.False(t, l.allow("kiosk-a"))

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("kiosk-a"))
	}
	assert.False(t, l.allow("kiosk-a"), "refill is capped at capacity")
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestGinMiddleware_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1)
	r := gin.New()
	r.POST("/scan", l.GinMiddleware(func(c *gin.Context) string { return c.GetHeader("X-Kiosk") }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(kiosk string) int {
		req := httptest.NewRequest(http.MethodPost, "/scan", nil)
		req.Header.Set("X-Kiosk", kiosk)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, send("lobby"))
	assert.Equal(t, http.StatusTooManyRequests, send("lobby"))
	assert.Equal(t, http.StatusOK, send("hallway"))
}
