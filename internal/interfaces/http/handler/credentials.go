package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apptenancy "github.com/odyssee/backend/internal/application/tenancy"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
)

// CredentialManager stores and reports agency credentials
type CredentialManager interface {
	Status(ctx context.Context, agencyID uuid.UUID) (*apptenancy.CredentialStatus, error)
	UpdateCredentials(ctx context.Context, agencyID uuid.UUID, input apptenancy.UpdateCredentialsInput) (*apptenancy.CredentialStatus, error)
}

var _ CredentialManager = (*apptenancy.CredentialService)(nil)

// CredentialHandler lets agency admins manage their third-party credentials.
// Responses only ever say which credentials are configured.
type CredentialHandler struct {
	BaseHandler
	credentials CredentialManager
}

// NewCredentialHandler creates a new CredentialHandler
func NewCredentialHandler(base BaseHandler, credentials CredentialManager) *CredentialHandler {
	return &CredentialHandler{BaseHandler: base, credentials: credentials}
}

// Status godoc
// @Summary      Which agency credentials are configured
// @Tags         agency
// @Produce      json
// @Success      200 {object} dto.Response{data=apptenancy.CredentialStatus}
// @Failure      403 {object} dto.Response
// @Router       /agency/credentials [get]
func (h *CredentialHandler) Status(c *gin.Context) {
	status, err := h.credentials.Status(c.Request.Context(), middleware.GetAgencyID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// Update godoc
// @Summary      Replace or clear agency credentials
// @Tags         agency
// @Accept       json
// @Produce      json
// @Param        request body dto.UpdateCredentialsRequest true "Credentials to set or clear"
// @Success      200 {object} dto.Response{data=apptenancy.CredentialStatus}
// @Failure      400 {object} dto.Response
// @Failure      403 {object} dto.Response
// @Router       /agency/credentials [put]
func (h *CredentialHandler) Update(c *gin.Context) {
	var req dto.UpdateCredentialsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	status, err := h.credentials.UpdateCredentials(c.Request.Context(), middleware.GetAgencyID(c), apptenancy.UpdateCredentialsInput{
		GoogleAPIKey:           req.GoogleAPIKey,
		StripeAPIKey:           req.StripeAPIKey,
		MailConfig:             req.MailConfig,
		PublicationConfig:      req.PublicationConfig,
		ClearGoogleAPIKey:      req.Clears(tenancy.CredentialGoogleAPIKey),
		ClearStripeAPIKey:      req.Clears(tenancy.CredentialStripeAPIKey),
		ClearMailConfig:        req.Clears(tenancy.CredentialMailConfig),
		ClearPublicationConfig: req.Clears(tenancy.CredentialPublicationConfig),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}
