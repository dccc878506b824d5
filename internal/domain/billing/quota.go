package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/tenancy"
)

// QuotaUsage is a snapshot of both counters after a decision
type QuotaUsage struct {
	SellerID uuid.UUID `json:"seller_id"`
	AgencyID uuid.UUID `json:"agency_id"`

	DailyUsed     int       `json:"daily_used"`
	DailyLimit    int       `json:"daily_limit"`
	DailyResetsAt time.Time `json:"daily_resets_at"`

	MonthlyUsed     int       `json:"monthly_used"`
	MonthlyLimit    int       `json:"monthly_limit"`
	MonthlyResetsAt time.Time `json:"monthly_resets_at"`
}

// DailyRemaining returns the generations the seller has left today
func (u QuotaUsage) DailyRemaining() int {
	return max(u.DailyLimit-u.DailyUsed, 0)
}

// MonthlyRemaining returns the generations the agency has left this month
func (u QuotaUsage) MonthlyRemaining() int {
	return max(u.MonthlyLimit-u.MonthlyUsed, 0)
}

// QuotaLedger atomically checks and records one generation for a
// seller/agency pair. Implementations lock the seller row, then the
// agency row, for the whole decision.
type QuotaLedger interface {
	CheckAndIncrement(ctx context.Context, sellerID, agencyID uuid.UUID) (*QuotaUsage, error)
	// Usage returns the effective counters (resets applied) without mutating anything
	Usage(ctx context.Context, sellerID, agencyID uuid.UUID) (*QuotaUsage, error)
}

// ApplyResets performs the daily and monthly period rollovers for today
func ApplyResets(seller *tenancy.Seller, agency *tenancy.Agency, today time.Time) (sellerReset, agencyReset bool) {
	return seller.ResetDailyIfStale(today), agency.ResetMonthlyIfStale(today)
}

// Check evaluates the limits on already-reset entities. The seller limit
// is checked before the agency limit.
func Check(seller *tenancy.Seller, agency *tenancy.Agency, today time.Time) error {
	if !agency.IsActive {
		return &QuotaDeniedError{Reason: ReasonAgencyInactive}
	}
	if !seller.IsActive {
		return &QuotaDeniedError{Reason: ReasonSellerInactive}
	}
	if !seller.HasDailyCapacity() {
		return &QuotaDeniedError{
			Reason:   ReasonSellerDailyLimit,
			Used:     seller.GenerationCount,
			Limit:    seller.DailyGenerationLimit,
			ResetsAt: today.AddDate(0, 0, 1),
		}
	}
	if !agency.HasMonthlyCapacity() {
		return &QuotaDeniedError{
			Reason:   ReasonAgencyMonthlyLimit,
			Used:     agency.CurrentMonthUsage,
			Limit:    agency.MonthlyGenerationLimit,
			ResetsAt: agency.NextResetDate(),
		}
	}
	return nil
}

// ConsumeGeneration resets stale periods, checks both limits and, when
// allowed, increments both counters by one. On denial the caller must
// discard the entities (the resets are part of the same unit of work).
func ConsumeGeneration(seller *tenancy.Seller, agency *tenancy.Agency, today time.Time) (*QuotaUsage, error) {
	ApplyResets(seller, agency, today)
	if err := Check(seller, agency, today); err != nil {
		return nil, err
	}
	seller.GenerationCount++
	agency.CurrentMonthUsage++
	usage := Snapshot(seller, agency, today)
	return &usage, nil
}

// Snapshot reports the counters of seller and agency as seen on today
func Snapshot(seller *tenancy.Seller, agency *tenancy.Agency, today time.Time) QuotaUsage {
	return QuotaUsage{
		SellerID:        seller.ID,
		AgencyID:        agency.ID,
		DailyUsed:       seller.GenerationCount,
		DailyLimit:      seller.DailyGenerationLimit,
		DailyResetsAt:   today.AddDate(0, 0, 1),
		MonthlyUsed:     agency.CurrentMonthUsage,
		MonthlyLimit:    agency.MonthlyGenerationLimit,
		MonthlyResetsAt: agency.NextResetDate(),
	}
}
