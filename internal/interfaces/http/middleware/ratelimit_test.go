package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRateLimiter_Allow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(3, time.Minute, clock)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("seller:a")
		require.True(t, ok, "request %d within burst", i+1)
	}

	ok, wait := rl.Allow("seller:a")
	assert.False(t, ok)
	assert.InDelta(t, (20 * time.Second).Seconds(), wait.Seconds(), 0.5)

	// keys are independent
	ok, _ = rl.Allow("seller:b")
	assert.True(t, ok)

	// one token every window/requests
	clock.Advance(20 * time.Second)
	ok, _ = rl.Allow("seller:a")
	assert.True(t, ok)
}

func TestRateLimiter_SweepsIdleKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(5, time.Minute, clock)

	rl.Allow("ip:10.0.0.1")
	rl.Allow("ip:10.0.0.2")
	require.Equal(t, 2, rl.Len())

	clock.Advance(3 * time.Minute)
	rl.Allow("ip:10.0.0.3")

	assert.Equal(t, 1, rl.Len())
}

func TestRateLimit_Middleware(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(1, time.Minute, clock)

	router := gin.New()
	router.Use(RequestID(), RateLimit(limiter))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Equal(t, dto.ErrCodeRateLimited, decodeError(t, second).Code)
}

func TestRateLimit_KeysBySeller(t *testing.T) {
	svc := newTestJWTService()
	agencyID := uuid.New()
	tokenA, _ := issueToken(t, svc, agencyID, tenancy.RoleSeller)
	tokenB, _ := issueToken(t, svc, agencyID, tenancy.RoleSeller)
	limiter := NewRateLimiter(1, time.Minute, clockwork.NewFakeClock())

	router := gin.New()
	router.Use(JWTAuth(svc, zap.NewNop()), RateLimit(limiter))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(AuthHeaderKey, "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	// same client IP, different sellers
	assert.Equal(t, http.StatusOK, call(tokenA))
	assert.Equal(t, http.StatusOK, call(tokenB))
	assert.Equal(t, http.StatusTooManyRequests, call(tokenA))
}
