package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(previous)
	})
	return sr
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestTracing_SpanCarriesTenantIDs(t *testing.T) {
	sr := setupTestTracer(t)
	svc := newTestJWTService()
	agencyID := uuid.New()
	token, sellerID := issueToken(t, svc, agencyID, tenancy.RoleSeller)

	router := gin.New()
	router.Use(RequestID(), Tracing("odyssee-test"), JWTAuth(svc, zap.NewNop()), SpanAttributes())
	router.GET("/api/v1/quota", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil)
	req.Header.Set(AuthHeaderKey, "Bearer "+token)
	req.Header.Set(RequestIDHeader, "req-trace-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	span := findSpan(t, sr, "GET /api/v1/quota")
	assert.Equal(t, "req-trace-1", spanAttr(span, "request_id"))
	assert.Equal(t, agencyID.String(), spanAttr(span, "agency_id"))
	assert.Equal(t, sellerID.String(), spanAttr(span, "seller_id"))
}

func TestSpanAttributes_MarksServerErrors(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing("odyssee-test"), SpanAttributes())
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	router.GET("/denied", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })

	for _, path := range []string{"/boom", "/denied"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, codes.Error, findSpan(t, sr, "GET /boom").Status().Code)
	// a quota denial is an expected answer, not a failure
	assert.NotEqual(t, codes.Error, findSpan(t, sr, "GET /denied").Status().Code)
}

func TestSpanAttributes_WithoutSpan(t *testing.T) {
	router := gin.New()
	router.Use(SpanAttributes())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
