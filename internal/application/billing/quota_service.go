package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// QuotaService gates metered operations on the seller daily and agency
// monthly generation limits.
type QuotaService struct {
	ledger  billing.QuotaLedger
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// NewQuotaService creates a new quota service
func NewQuotaService(ledger billing.QuotaLedger, metrics *telemetry.Metrics, logger *zap.Logger) *QuotaService {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &QuotaService{
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
	}
}

// CheckAndIncrement records one generation for the seller if both limits
// allow it. Denials return a *billing.QuotaDeniedError, transient
// failures a *billing.QuotaCheckFailedError; neither must be treated as
// permission to proceed.
func (s *QuotaService) CheckAndIncrement(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error) {
	log := logger.Bind(ctx, s.logger).With(
		zap.String("seller_id", sellerID.String()),
		zap.String("agency_id", agencyID.String()))

	usage, err := s.ledger.CheckAndIncrement(ctx, sellerID, agencyID)
	if err == nil {
		s.metrics.RecordQuotaDecision(ctx, telemetry.OutcomeAllowed, "")
		log.Debug("Generation quota consumed",
			zap.Int("daily_used", usage.DailyUsed),
			zap.Int("daily_limit", usage.DailyLimit),
			zap.Int("monthly_used", usage.MonthlyUsed),
			zap.Int("monthly_limit", usage.MonthlyLimit))
		return usage, nil
	}

	if denied, ok := billing.IsQuotaDenied(err); ok {
		s.metrics.RecordQuotaDecision(ctx, telemetry.OutcomeDenied, string(denied.Reason))
		log.Info("Generation quota denied",
			zap.String("reason", string(denied.Reason)),
			zap.Int("used", denied.Used),
			zap.Int("limit", denied.Limit))
		return nil, err
	}

	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("Quota subject not found")
		return nil, err
	}

	s.metrics.RecordQuotaDecision(ctx, telemetry.OutcomeFailed, "")
	log.Error("Quota check failed", zap.Error(err))
	if !errors.Is(err, billing.ErrQuotaCheckFailed) {
		err = billing.NewQuotaCheckFailed(err)
	}
	return nil, err
}

// Usage returns the effective counters of the pair without consuming anything
func (s *QuotaService) Usage(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error) {
	usage, err := s.ledger.Usage(ctx, sellerID, agencyID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, billing.ErrQuotaCheckFailed) {
			err = billing.NewQuotaCheckFailed(err)
		}
		return nil, err
	}
	return usage, nil
}
