package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/auth"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey   = "jwt_claims"
	JWTAgencyIDKey = "jwt_agency_id"
	JWTSellerIDKey = "jwt_seller_id"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
)

// TokenValidator validates a bearer token into seller claims
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// JWTAuth authenticates the seller behind every request of the group.
// The agency and seller ids are stored in the gin context and added to
// the request logger.
func JWTAuth(validator TokenValidator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		claims, err := validator.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			logger.Bind(c.Request.Context(), log).Warn("JWT authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path))
			code, message := authErrorResponse(err)
			abortWithError(c, code, message)
			return
		}

		// Claims were validated as uuids
		agencyID, _ := claims.AgencyUUID()
		sellerID, _ := claims.SellerUUID()

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTAgencyIDKey, agencyID)
		c.Set(JWTSellerIDKey, sellerID)

		ctx := logger.WithAgencyID(c.Request.Context(), agencyID)
		ctx = logger.WithSellerID(ctx, sellerID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func authErrorResponse(err error) (code, message string) {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return dto.ErrCodeTokenInvalid, "Token is not yet valid"
	default:
		return dto.ErrCodeTokenInvalid, "Invalid token"
	}
}

// RequireRole rejects sellers whose token does not carry one of roles
func RequireRole(roles ...tenancy.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetJWTClaims(c)
		if claims == nil {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		abortWithError(c, dto.ErrCodeForbidden, "This action requires the "+joinRoles(roles)+" role")
	}
}

func joinRoles(roles []tenancy.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetAgencyID returns the authenticated agency, or uuid.Nil
func GetAgencyID(c *gin.Context) uuid.UUID {
	return getUUID(c, JWTAgencyIDKey)
}

// GetSellerID returns the authenticated seller, or uuid.Nil
func GetSellerID(c *gin.Context) uuid.UUID {
	return getUUID(c, JWTSellerIDKey)
}

func getUUID(c *gin.Context, key string) uuid.UUID {
	if v, exists := c.Get(key); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
