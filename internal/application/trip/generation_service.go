package trip

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/trip"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// MaxPromptLength bounds the free-text request sent to the model
const MaxPromptLength = 4000

// ErrInvalidPrompt is returned for an empty or oversized prompt
var ErrInvalidPrompt = shared.NewDomainError("INVALID_INPUT", "Prompt must be between 1 and 4000 characters")

// GoogleKeySource opens the agency's Gemini key
type GoogleKeySource interface {
	GoogleAPIKey(ctx context.Context, agencyID uuid.UUID) (string, error)
}

// QuotaGate consumes one generation from the seller and agency quotas
type QuotaGate interface {
	CheckAndIncrement(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error)
}

// DraftGenerator turns a prompt into a structured trip draft
type DraftGenerator interface {
	ParsePrompt(ctx context.Context, apiKey, prompt string) (*trip.Draft, error)
}

// GenerateInput is one metered generation request
type GenerateInput struct {
	AgencyID uuid.UUID
	SellerID uuid.UUID
	Prompt   string
	// IdempotencyKey is optional; a key seen within the TTL is rejected before any quota is consumed
	IdempotencyKey string
}

// GenerateResult is a generated draft and the quota left after it
type GenerateResult struct {
	Draft *trip.Draft         `json:"draft"`
	Title string              `json:"title"`
	Quota *billing.QuotaUsage `json:"quota"`
}

// GenerationService runs the metered trip generation
type GenerationService struct {
	keys        GoogleKeySource
	quota       QuotaGate
	generator   DraftGenerator
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	metrics     *telemetry.Metrics
	logger      *zap.Logger
}

// NewGenerationService creates a new generation service. idempotency may be nil.
func NewGenerationService(
	keys GoogleKeySource,
	quota QuotaGate,
	generator DraftGenerator,
	idempotency shared.IdempotencyStore,
	idemConfig shared.IdempotencyConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *GenerationService {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if idemConfig.TTL <= 0 {
		idemConfig.TTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &GenerationService{
		keys:        keys,
		quota:       quota,
		generator:   generator,
		idempotency: idempotency,
		idemConfig:  idemConfig,
		metrics:     metrics,
		logger:      logger,
	}
}

// Generate opens the agency key, consumes one unit of quota and calls the
// model once. The key is opened first so that a missing or unreadable
// key never costs quota. A generator failure after the quota was
// consumed is not refunded and not retried.
func (s *GenerationService) Generate(ctx context.Context, input GenerateInput) (result *GenerateResult, err error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" || utf8.RuneCountInString(prompt) > MaxPromptLength {
		return nil, ErrInvalidPrompt
	}

	log := logger.Bind(ctx, s.logger).With(
		zap.String("agency_id", input.AgencyID.String()),
		zap.String("seller_id", input.SellerID.String()))
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, time.Since(start), generationOutcome(err))
	}()

	if key := s.idempotencyKey(input); key != "" {
		fresh, markErr := s.idempotency.MarkProcessed(ctx, key, s.idemConfig.TTL)
		switch {
		case markErr != nil:
			log.Warn("Idempotency store unavailable, continuing without de-duplication", zap.Error(markErr))
		case !fresh:
			log.Info("Duplicate generation request rejected")
			return nil, shared.ErrDuplicate
		default:
			defer func() {
				if err == nil {
					return
				}
				// Let the client retry with the same key
				if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
					log.Warn("Failed to release idempotency key", zap.Error(relErr))
				}
			}()
		}
	}

	apiKey, err := s.keys.GoogleAPIKey(ctx, input.AgencyID)
	if err != nil {
		return nil, err
	}

	usage, err := s.quota.CheckAndIncrement(ctx, input.SellerID, input.AgencyID)
	if err != nil {
		return nil, err
	}

	draft, err := s.generator.ParsePrompt(ctx, apiKey, prompt)
	if err != nil {
		log.Warn("Trip generation failed after quota was consumed",
			zap.Int("daily_used", usage.DailyUsed),
			zap.Int("monthly_used", usage.MonthlyUsed),
			zap.Error(err))
		return nil, err
	}

	log.Info("Trip generated",
		zap.String("destination", draft.Destination),
		zap.Duration("duration", time.Since(start)))
	return &GenerateResult{Draft: draft, Title: draft.Title(), Quota: usage}, nil
}

func (s *GenerationService) idempotencyKey(input GenerateInput) string {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" || s.idempotency == nil || !s.idemConfig.Enabled {
		return ""
	}
	return "generation:" + input.AgencyID.String() + ":" + input.SellerID.String() + ":" + key
}

func generationOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeAllowed
	case errors.Is(err, billing.ErrQuotaDenied), errors.Is(err, shared.ErrDuplicate):
		return telemetry.OutcomeDenied
	default:
		return telemetry.OutcomeFailed
	}
}
