// Package tenancy manages the encrypted credentials of agencies.
//
// Credentials are decrypted right before use and never cached: every
// getter reads the current blob and opens it with the vault. An empty
// blob means "not configured" (422 upstream); a blob that cannot be
// opened is a decryption failure (502) and is never treated as absent.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	stripebilling "github.com/odyssee/backend/internal/infrastructure/billing"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/secrets"
	"github.com/odyssee/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CredentialService stores and opens agency credentials
type CredentialService struct {
	agencies tenancy.AgencyRepository
	vault    *secrets.Vault
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewCredentialService creates a new credential service
func NewCredentialService(agencies tenancy.AgencyRepository, vault *secrets.Vault, metrics *telemetry.Metrics, logger *zap.Logger) *CredentialService {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &CredentialService{
		agencies: agencies,
		vault:    vault,
		metrics:  metrics,
		logger:   logger,
	}
}

// UpdateCredentials validates and encrypts the provided fields and stores
// only those blobs. Fields not mentioned keep whatever is stored when the
// write happens, so concurrent updates of different fields all land.
func (s *CredentialService) UpdateCredentials(ctx context.Context, agencyID uuid.UUID, input UpdateCredentialsInput) (*CredentialStatus, error) {
	changes := make(map[tenancy.CredentialField]string, 4)
	changed := make([]string, 0, 4)

	type update struct {
		field tenancy.CredentialField
		set   bool
		clear bool
		seal  func() (string, error)
	}
	updates := []update{
		{tenancy.CredentialGoogleAPIKey, input.GoogleAPIKey != nil, input.ClearGoogleAPIKey, func() (string, error) {
			return s.sealAPIKey(*input.GoogleAPIKey, validateGoogleKey)
		}},
		{tenancy.CredentialStripeAPIKey, input.StripeAPIKey != nil, input.ClearStripeAPIKey, func() (string, error) {
			return s.sealAPIKey(*input.StripeAPIKey, validateStripeKey)
		}},
		{tenancy.CredentialMailConfig, input.MailConfig != nil, input.ClearMailConfig, func() (string, error) {
			return secrets.SealJSON(s.vault, *input.MailConfig)
		}},
		{tenancy.CredentialPublicationConfig, input.PublicationConfig != nil, input.ClearPublicationConfig, func() (string, error) {
			return secrets.SealJSON(s.vault, *input.PublicationConfig)
		}},
	}

	for _, u := range updates {
		switch {
		case u.set && u.clear:
			return nil, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("%s cannot be set and cleared in the same request", u.field))
		case u.clear:
			changes[u.field] = ""
			changed = append(changed, string(u.field)+":cleared")
		case u.set:
			blob, err := u.seal()
			if err != nil {
				return nil, err
			}
			changes[u.field] = blob
			changed = append(changed, string(u.field)+":set")
		}
	}

	if len(changes) == 0 {
		return s.Status(ctx, agencyID)
	}

	agency, err := s.agencies.UpdateSecrets(ctx, agencyID, changes)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			logger.Bind(ctx, s.logger).Error("Failed to store agency credentials",
				zap.String("agency_id", agencyID.String()),
				zap.Error(err))
		}
		return nil, err
	}

	logger.Bind(ctx, s.logger).Info("Agency credentials updated",
		zap.String("agency_id", agencyID.String()),
		zap.Strings("changes", changed))
	return NewCredentialStatus(agency), nil
}

// Status reports which credentials are configured without decrypting anything
func (s *CredentialService) Status(ctx context.Context, agencyID uuid.UUID) (*CredentialStatus, error) {
	agency, err := s.agencies.FindByID(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	return NewCredentialStatus(agency), nil
}

// GoogleAPIKey returns the agency's Gemini key
func (s *CredentialService) GoogleAPIKey(ctx context.Context, agencyID uuid.UUID) (string, error) {
	return s.openString(ctx, agencyID, tenancy.CredentialGoogleAPIKey)
}

// StripeAPIKey returns the agency's Stripe secret key
func (s *CredentialService) StripeAPIKey(ctx context.Context, agencyID uuid.UUID) (string, error) {
	return s.openString(ctx, agencyID, tenancy.CredentialStripeAPIKey)
}

// MailConfig returns the agency's SMTP account
func (s *CredentialService) MailConfig(ctx context.Context, agencyID uuid.UUID) (tenancy.MailConfig, error) {
	return openConfig[tenancy.MailConfig](ctx, s, agencyID, tenancy.CredentialMailConfig)
}

// PublicationConfig returns the agency's publication target
func (s *CredentialService) PublicationConfig(ctx context.Context, agencyID uuid.UUID) (tenancy.PublicationConfig, error) {
	return openConfig[tenancy.PublicationConfig](ctx, s, agencyID, tenancy.CredentialPublicationConfig)
}

// Audit tries to open every stored blob of every agency, active or not.
// It reports the unreadable ones and never returns credential values.
func (s *CredentialService) Audit(ctx context.Context) (*AuditReport, error) {
	agencies, err := s.agencies.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Unreadable: []UnreadableCredential{}}
	for i := range agencies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		agency := &agencies[i]
		report.AgenciesChecked++
		for _, field := range tenancy.AllCredentialFields() {
			blob := agency.Secrets.Get(field)
			if blob == "" {
				continue
			}
			report.BlobsChecked++
			if err := s.check(field, blob); err != nil {
				report.Unreadable = append(report.Unreadable, UnreadableCredential{
					AgencyID:  agency.ID,
					Subdomain: agency.Subdomain,
					Field:     field,
					Reason:    err.Error(),
				})
			}
		}
	}

	log := logger.Bind(ctx, s.logger)
	if report.Healthy() {
		log.Info("Credential audit passed",
			zap.Int("agencies", report.AgenciesChecked),
			zap.Int("blobs", report.BlobsChecked))
	} else {
		log.Error("Credential audit found unreadable blobs",
			zap.Int("agencies", report.AgenciesChecked),
			zap.Int("blobs", report.BlobsChecked),
			zap.Int("unreadable", len(report.Unreadable)))
	}
	return report, nil
}

func (s *CredentialService) check(field tenancy.CredentialField, blob string) error {
	switch field {
	case tenancy.CredentialMailConfig:
		_, _, err := secrets.OpenJSON[tenancy.MailConfig](s.vault, blob)
		return err
	case tenancy.CredentialPublicationConfig:
		_, _, err := secrets.OpenJSON[tenancy.PublicationConfig](s.vault, blob)
		return err
	}
	_, err := s.vault.Decrypt(blob)
	return err
}

func (s *CredentialService) openString(ctx context.Context, agencyID uuid.UUID, field tenancy.CredentialField) (string, error) {
	agency, err := s.agencies.FindByID(ctx, agencyID)
	if err != nil {
		return "", err
	}
	blob := agency.Secrets.Get(field)
	if blob == "" {
		return "", tenancy.NotConfigured(field)
	}
	value, err := s.vault.Decrypt(blob)
	if err != nil {
		return "", s.unreadable(ctx, agencyID, field, err)
	}
	return value, nil
}

func openConfig[T secrets.Validatable](ctx context.Context, s *CredentialService, agencyID uuid.UUID, field tenancy.CredentialField) (T, error) {
	var zero T
	agency, err := s.agencies.FindByID(ctx, agencyID)
	if err != nil {
		return zero, err
	}
	value, configured, err := secrets.OpenJSON[T](s.vault, agency.Secrets.Get(field))
	if err != nil {
		if !errors.Is(err, secrets.ErrDecryptionFailure) && !errors.Is(err, secrets.ErrVaultUninitialized) {
			// A stored document that no longer validates is as unusable as one that does not decrypt.
			err = fmt.Errorf("%w: stored document is invalid: %v", secrets.ErrDecryptionFailure, err)
		}
		return zero, s.unreadable(ctx, agencyID, field, err)
	}
	if !configured {
		return zero, tenancy.NotConfigured(field)
	}
	return value, nil
}

func (s *CredentialService) unreadable(ctx context.Context, agencyID uuid.UUID, field tenancy.CredentialField, err error) error {
	s.metrics.RecordDecryptFailure(ctx, string(field))
	logger.Bind(ctx, s.logger).Error("Agency credential is unreadable",
		zap.String("agency_id", agencyID.String()),
		zap.String("field", string(field)),
		zap.Error(err))
	return fmt.Errorf("%s: %w", field, err)
}

func (s *CredentialService) sealAPIKey(key string, check func(string) error) (string, error) {
	key = strings.TrimSpace(key)
	if err := check(key); err != nil {
		return "", err
	}
	return s.vault.Encrypt(key)
}

func validateGoogleKey(key string) error {
	if key == "" || strings.ContainsAny(key, " \t\n") {
		return shared.NewDomainError("INVALID_INPUT", "Google API key must be a non-empty token")
	}
	return nil
}

func validateStripeKey(key string) error {
	if err := stripebilling.ValidateSecretKey(key); err != nil {
		return shared.NewDomainError("INVALID_INPUT", "Stripe API key must start with sk_ or rk_")
	}
	return nil
}
