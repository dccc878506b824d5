package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func findEntry(entries []observer.LoggedEntry, msg string) *observer.LoggedEntry {
	for i := range entries {
		if entries[i].Message == msg {
			return &entries[i]
		}
	}
	return nil
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("logs request with level by status", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)

		router := gin.New()
		router.Use(GinMiddleware(zap.New(core)))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.GET("/quota", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
		router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

		for _, path := range []string{"/ok", "/quota", "/boom"} {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		}

		entries := recorded.FilterMessage("HTTP Request").All()
		require.Len(t, entries, 3)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	})

	t.Run("exposes logger and ids through the request context", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		agencyID := uuid.New()

		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set(GinRequestIDKey, "req-123")
			c.Next()
		})
		router.Use(GinMiddleware(zap.New(core)))
		router.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(WithAgencyID(c.Request.Context(), agencyID))
			c.Next()
		})
		router.GET("/test", func(c *gin.Context) {
			L(c.Request.Context()).Info("inside handler")
			c.Status(http.StatusOK)
		})

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		inside := findEntry(recorded.All(), "inside handler")
		require.NotNil(t, inside)
		assert.Equal(t, "req-123", inside.ContextMap()["request_id"])
		assert.Equal(t, agencyID.String(), inside.ContextMap()["agency_id"])

		access := findEntry(recorded.All(), "HTTP Request")
		require.NotNil(t, access)
		assert.Equal(t, agencyID.String(), access.ContextMap()["agency_id"])
		assert.Equal(t, "/test", access.ContextMap()["path"])
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"INTERNAL_ERROR"`)
	require.NotNil(t, findEntry(recorded.All(), "Panic recovered"))
}
