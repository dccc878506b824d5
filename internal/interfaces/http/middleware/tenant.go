package middleware

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// AgencyResolver finds agencies by subdomain or by ID
type AgencyResolver interface {
	FindBySubdomain(ctx context.Context, subdomain string) (*tenancy.Agency, error)
	FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Agency, error)
}

// TenantConfig holds configuration for the tenant middleware
type TenantConfig struct {
	// BaseDomain is the platform domain; agencies are served on <subdomain>.<BaseDomain>
	BaseDomain string
	// ReservedSubdomains are platform hosts that name no agency
	ReservedSubdomains []string
	Resolver           AgencyResolver
	Logger             *zap.Logger
}

// Tenant checks that the agency the request addresses is the agency of the
// token and that it is active. The agency comes from the host subdomain,
// else from X-Agency-ID. A request naming no agency acts on the token's
// agency. It must run after JWTAuth.
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	if len(cfg.ReservedSubdomains) == 0 {
		cfg.ReservedSubdomains = []string{"www", "api", "app"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		tokenAgency := GetAgencyID(c)
		if tokenAgency == uuid.Nil {
			abortWithError(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		ctx := c.Request.Context()
		log := logger.Bind(ctx, cfg.Logger)

		var agency *tenancy.Agency
		if sub := cfg.subdomain(c.Request.Host); sub != "" {
			found, err := cfg.Resolver.FindBySubdomain(ctx, sub)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					abortWithError(c, dto.ErrCodeNotFound, "Unknown agency")
					return
				}
				log.Error("Failed to resolve agency subdomain", zap.String("subdomain", sub), zap.Error(err))
				abortWithError(c, dto.ErrCodeInternal, "An unexpected error occurred")
				return
			}
			if found.ID != tokenAgency {
				log.Warn("Token used on another agency's subdomain", zap.String("subdomain", sub))
				abortWithError(c, dto.ErrCodeTenantMismatch, "Token does not belong to this agency")
				return
			}
			agency = found
		} else {
			if header := c.GetHeader(AgencyHeader); header != "" {
				id, err := uuid.Parse(header)
				if err != nil {
					abortWithError(c, dto.ErrCodeInvalidInput, "X-Agency-ID must be a UUID")
					return
				}
				if id != tokenAgency {
					log.Warn("Token used with another agency's header", zap.String("agency_header", header))
					abortWithError(c, dto.ErrCodeTenantMismatch, "Token does not belong to this agency")
					return
				}
			}

			found, err := cfg.Resolver.FindByID(ctx, tokenAgency)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					abortWithError(c, dto.ErrCodeUnauthorized, "Token agency no longer exists")
					return
				}
				log.Error("Failed to load token agency", zap.Error(err))
				abortWithError(c, dto.ErrCodeInternal, "An unexpected error occurred")
				return
			}
			agency = found
		}

		if !agency.IsActive {
			abortWithError(c, dto.ErrCodeForbidden, "Agency is inactive")
			return
		}
		c.Next()
	}
}

// subdomain extracts the agency label of host, e.g. "lyon" for
// "lyon.odyssee.travel:443". Hosts outside BaseDomain yield "".
func (cfg TenantConfig) subdomain(host string) string {
	if cfg.BaseDomain == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	label, ok := strings.CutSuffix(host, "."+cfg.BaseDomain)
	if !ok || label == "" {
		return ""
	}
	// The label next to the base domain names the agency
	if i := strings.LastIndexByte(label, '.'); i >= 0 {
		label = label[i+1:]
	}
	if slices.Contains(cfg.ReservedSubdomains, label) {
		return ""
	}
	return label
}
