package handler

import (
	"context"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/application/trip"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
)

// SheetPublisher renders trip sheets and uploads them to the agency site
type SheetPublisher interface {
	RenderSheet(ctx context.Context, agencyID uuid.UUID, input trip.SheetInput) (*trip.Sheet, error)
	Publish(ctx context.Context, agencyID uuid.UUID, input trip.SheetInput) (*trip.PublishResult, error)
}

var _ SheetPublisher = (*trip.PublicationService)(nil)

// TripHandler serves trip sheet rendering and publication
type TripHandler struct {
	BaseHandler
	sheets SheetPublisher
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(base BaseHandler, sheets SheetPublisher) *TripHandler {
	return &TripHandler{BaseHandler: base, sheets: sheets}
}

// Sheet godoc
// @Summary      Render a trip sheet
// @Description  Returns the sheet as HTML, or as an A4 PDF with format=pdf
// @Tags         trips
// @Accept       json
// @Produce      text/html,application/pdf
// @Param        format query string false "html or pdf" Enums(html, pdf)
// @Param        request body dto.TripSheetRequest true "Draft and branding overrides"
// @Success      200 {file} binary
// @Failure      400 {object} dto.Response
// @Failure      504 {object} dto.Response
// @Router       /trips/sheet [post]
func (h *TripHandler) Sheet(c *gin.Context) {
	var req dto.TripSheetRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input := sheetInput(req)
	input.Format = c.DefaultQuery("format", trip.FormatHTML)

	sheet, err := h.sheets.RenderSheet(c.Request.Context(), middleware.GetAgencyID(c), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	disposition := "inline"
	if input.Format == trip.FormatPDF {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": sheet.FileName}))
	c.Data(http.StatusOK, sheet.ContentType, sheet.Content)
}

// Publish godoc
// @Summary      Publish a trip sheet to the agency site
// @Description  Uploads the HTML sheet over FTP or to S3, per the agency's publication config
// @Tags         trips
// @Accept       json
// @Produce      json
// @Param        request body dto.TripSheetRequest true "Draft and branding overrides"
// @Success      200 {object} dto.Response{data=trip.PublishResult}
// @Failure      422 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Router       /trips/publish [post]
func (h *TripHandler) Publish(c *gin.Context) {
	var req dto.TripSheetRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.sheets.Publish(c.Request.Context(), middleware.GetAgencyID(c), sheetInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func sheetInput(req dto.TripSheetRequest) trip.SheetInput {
	return trip.SheetInput{
		Draft:        req.Draft,
		HotelPlaceID: req.HotelPlaceID,
		PrimaryColor: req.PrimaryColor,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	}
}
