package dto

import (
	"time"

	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/domain/trip"
	"github.com/shopspring/decimal"
)

// GenerateTripRequest is the body of POST /generations
type GenerateTripRequest struct {
	Prompt string `json:"prompt" binding:"required,max=4000"`
}

// UpdateCredentialsRequest is the body of PUT /agency/credentials.
// Omitted fields are left unchanged; names listed in Clear are emptied.
type UpdateCredentialsRequest struct {
	GoogleAPIKey      *string                    `json:"google_api_key"`
	StripeAPIKey      *string                    `json:"stripe_api_key"`
	MailConfig        *tenancy.MailConfig        `json:"mail_config"`
	PublicationConfig *tenancy.PublicationConfig `json:"publication_config"`
	Clear             []string                   `json:"clear" binding:"omitempty,dive,oneof=google_api_key stripe_api_key mail_config publication_config"`
}

// Clears reports whether field is listed in Clear
func (r UpdateCredentialsRequest) Clears(field tenancy.CredentialField) bool {
	for _, name := range r.Clear {
		if name == string(field) {
			return true
		}
	}
	return false
}

// TripSheetRequest is the body of POST /trips/sheet and /trips/publish
type TripSheetRequest struct {
	Draft        trip.Draft `json:"draft"`
	HotelPlaceID string     `json:"hotel_place_id" binding:"omitempty,max=256"`
	PrimaryColor string     `json:"primary_color" binding:"omitempty,hexcolor"`
	ContactEmail string     `json:"contact_email" binding:"omitempty,email"`
	ContactPhone string     `json:"contact_phone" binding:"omitempty,max=32"`
}

// DepositLinkRequest is the body of POST /payments/links
type DepositLinkRequest struct {
	TripName string          `json:"trip_name" binding:"required,max=200"`
	Amount   decimal.Decimal `json:"amount"`
}

// ManualPaymentRequest is the body of POST /payments/manual
type ManualPaymentRequest struct {
	ClientName      string          `json:"client_name" binding:"required,max=200"`
	ClientEmail     string          `json:"client_email" binding:"required,email"`
	TripDestination string          `json:"trip_destination" binding:"required,max=200"`
	Amount          decimal.Decimal `json:"amount"`
	Template        string          `json:"template" binding:"omitempty,max=10000"`
}

// QuotaResponse is the effective usage of the calling seller and their agency
type QuotaResponse struct {
	DailyUsed        int       `json:"daily_used"`
	DailyLimit       int       `json:"daily_limit"`
	DailyRemaining   int       `json:"daily_remaining"`
	DailyResetsAt    time.Time `json:"daily_resets_at"`
	MonthlyUsed      int       `json:"monthly_used"`
	MonthlyLimit     int       `json:"monthly_limit"`
	MonthlyRemaining int       `json:"monthly_remaining"`
	MonthlyResetsAt  time.Time `json:"monthly_resets_at"`
}

// NewQuotaResponse converts a ledger snapshot
func NewQuotaResponse(u *billing.QuotaUsage) QuotaResponse {
	return QuotaResponse{
		DailyUsed:        u.DailyUsed,
		DailyLimit:       u.DailyLimit,
		DailyRemaining:   u.DailyRemaining(),
		DailyResetsAt:    u.DailyResetsAt,
		MonthlyUsed:      u.MonthlyUsed,
		MonthlyLimit:     u.MonthlyLimit,
		MonthlyRemaining: u.MonthlyRemaining(),
		MonthlyResetsAt:  u.MonthlyResetsAt,
	}
}

// GenerateTripResponse is a generated draft and the quota left after it
type GenerateTripResponse struct {
	Title string        `json:"title"`
	Draft *trip.Draft   `json:"draft"`
	Quota QuotaResponse `json:"quota"`
}
