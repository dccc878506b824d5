package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/application/payment"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
)

// PaymentRequester creates deposit links and mails manual payment instructions
type PaymentRequester interface {
	CreateDepositLink(ctx context.Context, agencyID uuid.UUID, input payment.DepositLinkInput) (*payment.DepositLink, error)
	SendManualPaymentInstructions(ctx context.Context, agencyID uuid.UUID, input payment.ManualPaymentInput) (*payment.ManualPaymentResult, error)
}

var _ PaymentRequester = (*payment.PaymentService)(nil)

// PaymentHandler serves the deposit payment endpoints
type PaymentHandler struct {
	BaseHandler
	payments PaymentRequester
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(base BaseHandler, payments PaymentRequester) *PaymentHandler {
	return &PaymentHandler{BaseHandler: base, payments: payments}
}

// CreateLink godoc
// @Summary      Create a Stripe deposit link
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body dto.DepositLinkRequest true "Trip name and deposit amount"
// @Success      201 {object} dto.Response{data=payment.DepositLink}
// @Failure      422 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Router       /payments/links [post]
func (h *PaymentHandler) CreateLink(c *gin.Context) {
	var req dto.DepositLinkRequest
	if !h.BindJSON(c, &req) {
		return
	}

	link, err := h.payments.CreateDepositLink(c.Request.Context(), middleware.GetAgencyID(c), payment.DepositLinkInput{
		TripName: req.TripName,
		Amount:   req.Amount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, link)
}

// SendManual godoc
// @Summary      Mail bank transfer instructions to a client
// @Description  Uses the agency SMTP account, or the platform account when none is configured
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body dto.ManualPaymentRequest true "Client and amount"
// @Success      200 {object} dto.Response{data=payment.ManualPaymentResult}
// @Failure      502 {object} dto.Response
// @Router       /payments/manual [post]
func (h *PaymentHandler) SendManual(c *gin.Context) {
	var req dto.ManualPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.payments.SendManualPaymentInstructions(c.Request.Context(), middleware.GetAgencyID(c), payment.ManualPaymentInput{
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		TripDestination: req.TripDestination,
		Amount:          req.Amount,
		Template:        req.Template,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
