package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/infrastructure/auth"
	"github.com/odyssee/backend/internal/infrastructure/generator"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/render"
	"github.com/odyssee/backend/internal/infrastructure/secrets"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	logger *zap.Logger
	clock  clockwork.Clock
}

// NewBaseHandler creates a BaseHandler. A nil clock uses the real one.
func NewBaseHandler(logger *zap.Logger, clock clockwork.Clock) BaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return BaseHandler{logger: logger, clock: clock}
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BindJSON binds the request body and answers 400 on failure. It returns
// false when the handler should stop.
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	if details := middleware.ValidationDetails(err); details != nil {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Request validation failed",
			middleware.GetRequestID(c),
			details,
		))
		return false
	}
	h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Malformed request body")
	return false
}

// HandleError converts service errors to HTTP responses. Quota and vault
// failures are checked before domain errors because they carry their own
// status and headers.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	if denied, ok := billing.IsQuotaDenied(err); ok {
		if wait := denied.RetryAfter(h.clock.Now()); wait > 0 {
			c.Header("Retry-After", retryAfterSeconds(wait))
		}
		h.Error(c, http.StatusTooManyRequests, dto.ErrCodeQuotaDenied, denied.Error())
		return
	}

	if errors.Is(err, billing.ErrQuotaCheckFailed) {
		h.log(c).Warn("Quota check failed", zap.Error(err))
		c.Header("Retry-After", "1")
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeQuotaCheckFailed, "Quota could not be checked, please retry")
		return
	}

	if errors.Is(err, secrets.ErrDecryptionFailure) || errors.Is(err, secrets.ErrVaultUninitialized) {
		h.Error(c, http.StatusBadGateway, dto.ErrCodeTenantConfigUnreadable,
			"Agency configuration could not be read, contact support")
		return
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeTokenExpired, "Token has expired")
		return
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidTokenType), errors.Is(err, auth.ErrInvalidClaims):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeTokenInvalid, "Invalid token")
		return
	}

	var renderErr *render.RenderError
	if errors.As(err, &renderErr) {
		h.log(c).Warn("Trip sheet rendering failed", zap.String("code", renderErr.Code), zap.Error(err))
		code := renderErr.Code
		if code == render.ErrCodeInvalidHTML {
			code = dto.ErrCodeRenderFailed
		}
		h.ErrorWithCode(c, code, renderErr.Message)
		return
	}

	switch {
	case errors.Is(err, generator.ErrInvalidAPIKey):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeGeneratorKeyRejected,
			"The agency Google API key was rejected")
		return
	case errors.Is(err, generator.ErrUpstream), errors.Is(err, generator.ErrUnparseable):
		h.log(c).Warn("Trip generation failed", zap.Error(err))
		h.Error(c, http.StatusBadGateway, dto.ErrCodeGeneratorFailed, "Trip could not be generated, please try again")
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		status := dto.GetHTTPStatus(domainErr.Code)
		if status >= http.StatusInternalServerError {
			h.log(c).Error("Request failed", zap.String("code", domainErr.Code), zap.Error(err))
		}
		h.Error(c, status, domainErr.Code, domainErr.Message)
		return
	}

	h.log(c).Error("Unexpected error", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

func (h *BaseHandler) log(c *gin.Context) *zap.Logger {
	return logger.Bind(c.Request.Context(), h.logger)
}

// retryAfterSeconds formats d as delta-seconds, rounded up
func retryAfterSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}
