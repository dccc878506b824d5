package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/odyssee/backend/internal/application/billing"
	"github.com/odyssee/backend/internal/application/trip"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
)

// TripGenerator runs one metered generation
type TripGenerator interface {
	Generate(ctx context.Context, input trip.GenerateInput) (*trip.GenerateResult, error)
}

// QuotaReader reads effective usage without consuming quota
type QuotaReader interface {
	Usage(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error)
}

var (
	_ TripGenerator = (*trip.GenerationService)(nil)
	_ QuotaReader   = (*appbilling.QuotaService)(nil)
)

// GenerationHandler serves trip generation and quota usage
type GenerationHandler struct {
	BaseHandler
	generations TripGenerator
	quota       QuotaReader
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(base BaseHandler, generations TripGenerator, quota QuotaReader) *GenerationHandler {
	return &GenerationHandler{BaseHandler: base, generations: generations, quota: quota}
}

// Generate godoc
// @Summary      Generate a trip draft
// @Description  Consumes one unit of the seller's daily and the agency's monthly quota
// @Tags         generations
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Retries with the same key are rejected with 409"
// @Param        request body dto.GenerateTripRequest true "Free-text trip request"
// @Success      201 {object} dto.Response{data=dto.GenerateTripResponse}
// @Failure      429 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /generations [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateTripRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.generations.Generate(c.Request.Context(), trip.GenerateInput{
		AgencyID:       middleware.GetAgencyID(c),
		SellerID:       middleware.GetSellerID(c),
		Prompt:         req.Prompt,
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.GenerateTripResponse{
		Title: result.Title,
		Draft: result.Draft,
		Quota: dto.NewQuotaResponse(result.Quota),
	})
}

// Quota godoc
// @Summary      Current quota usage
// @Tags         generations
// @Produce      json
// @Success      200 {object} dto.Response{data=dto.QuotaResponse}
// @Router       /quota [get]
func (h *GenerationHandler) Quota(c *gin.Context) {
	usage, err := h.quota.Usage(c.Request.Context(), middleware.GetSellerID(c), middleware.GetAgencyID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewQuotaResponse(usage))
}
