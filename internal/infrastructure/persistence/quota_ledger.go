package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaSubjectNotFound is returned when the seller does not exist or
// belongs to another agency, or the agency does not exist.
var ErrQuotaSubjectNotFound = shared.NewDomainError("NOT_FOUND", "Seller or agency not found")

// GormQuotaLedger implements billing.QuotaLedger with row-level locks.
//
// Every decision runs in one transaction that locks the seller row and
// then the agency row (SELECT ... FOR UPDATE, always in that order),
// applies the period resets, checks both limits and writes both counters.
// A denial rolls the transaction back, resets included.
type GormQuotaLedger struct {
	db          *gorm.DB
	clock       clockwork.Clock
	location    *time.Location
	lockTimeout time.Duration
}

// QuotaLedgerOption configures a GormQuotaLedger
type QuotaLedgerOption func(*GormQuotaLedger)

// WithLedgerClock overrides the wall clock
func WithLedgerClock(clock clockwork.Clock) QuotaLedgerOption {
	return func(l *GormQuotaLedger) {
		l.clock = clock
	}
}

// WithLedgerLocation sets the time zone that defines "today"
func WithLedgerLocation(loc *time.Location) QuotaLedgerOption {
	return func(l *GormQuotaLedger) {
		if loc != nil {
			l.location = loc
		}
	}
}

// WithLockTimeout bounds how long the transaction waits for a row lock.
// Only applied on PostgreSQL; zero keeps the server default.
func WithLockTimeout(d time.Duration) QuotaLedgerOption {
	return func(l *GormQuotaLedger) {
		l.lockTimeout = d
	}
}

// NewGormQuotaLedger creates a quota ledger on db
func NewGormQuotaLedger(db *gorm.DB, opts ...QuotaLedgerOption) *GormQuotaLedger {
	l := &GormQuotaLedger{
		db:       db,
		clock:    clockwork.NewRealClock(),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ billing.QuotaLedger = (*GormQuotaLedger)(nil)

// CheckAndIncrement records one generation for the pair if both limits allow it
func (l *GormQuotaLedger) CheckAndIncrement(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error) {
	var usage *billing.QuotaUsage
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		usage, err = l.CheckAndIncrementTx(tx, sellerID, agencyID)
		return err
	})
	if err != nil {
		return nil, classifyQuotaError(err)
	}
	return usage, nil
}

// CheckAndIncrementTx runs the decision inside a transaction owned by the
// caller. The caller must roll back when an error is returned.
func (l *GormQuotaLedger) CheckAndIncrementTx(tx *gorm.DB, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error) {
	today := tenancy.Date(l.clock.Now(), l.location)

	if err := l.applyLockTimeout(tx); err != nil {
		return nil, classifyQuotaError(err)
	}

	var seller models.SellerModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND agency_id = ?", sellerID, agencyID).
		Take(&seller).Error; err != nil {
		return nil, classifyQuotaError(err)
	}

	var agency models.AgencyModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", agencyID).
		Take(&agency).Error; err != nil {
		return nil, classifyQuotaError(err)
	}

	s, a := seller.ToDomain(), agency.ToDomain()
	usage, err := billing.ConsumeGeneration(s, a, today)
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	if err := tx.Model(&models.SellerModel{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"generation_count":     s.GenerationCount,
			"last_generation_date": s.LastGenerationDate,
			"updated_at":           now,
		}).Error; err != nil {
		return nil, classifyQuotaError(err)
	}
	if err := tx.Model(&models.AgencyModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"current_month_usage": a.CurrentMonthUsage,
			"usage_reset_date":    a.UsageResetDate,
			"updated_at":          now,
		}).Error; err != nil {
		return nil, classifyQuotaError(err)
	}

	return usage, nil
}

// Usage reports the counters as the next decision would see them, without locking or writing
func (l *GormQuotaLedger) Usage(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error) {
	today := tenancy.Date(l.clock.Now(), l.location)
	db := l.db.WithContext(ctx)

	var seller models.SellerModel
	if err := db.Where("id = ? AND agency_id = ?", sellerID, agencyID).Take(&seller).Error; err != nil {
		return nil, classifyQuotaError(err)
	}
	var agency models.AgencyModel
	if err := db.Where("id = ?", agencyID).Take(&agency).Error; err != nil {
		return nil, classifyQuotaError(err)
	}

	s, a := seller.ToDomain(), agency.ToDomain()
	billing.ApplyResets(s, a, today)
	usage := billing.Snapshot(s, a, today)
	return &usage, nil
}

func (l *GormQuotaLedger) applyLockTimeout(tx *gorm.DB) error {
	if l.lockTimeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	// SET does not accept bind parameters; the value is an integer we format ourselves.
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", l.lockTimeout.Milliseconds())).Error
}

// classifyQuotaError keeps denials and missing rows as they are and turns
// every other failure into a transient QuotaCheckFailedError.
func classifyQuotaError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, billing.ErrQuotaDenied),
		errors.Is(err, billing.ErrQuotaCheckFailed),
		errors.Is(err, shared.ErrNotFound):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrQuotaSubjectNotFound
	}
	return billing.NewQuotaCheckFailed(err)
}
