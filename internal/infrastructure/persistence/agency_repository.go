package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAgencyRepository implements tenancy.AgencyRepository using GORM
type GormAgencyRepository struct {
	db *gorm.DB
}

// NewGormAgencyRepository creates a new GormAgencyRepository
func NewGormAgencyRepository(db *gorm.DB) *GormAgencyRepository {
	return &GormAgencyRepository{db: db}
}

var _ tenancy.AgencyRepository = (*GormAgencyRepository)(nil)

// FindByID finds an agency by its ID
func (r *GormAgencyRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Agency, error) {
	var model models.AgencyModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySubdomain finds an agency by its subdomain slug
func (r *GormAgencyRepository) FindBySubdomain(ctx context.Context, subdomain string) (*tenancy.Agency, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return nil, shared.ErrNotFound
	}
	var model models.AgencyModel
	if err := r.db.WithContext(ctx).Where("subdomain = ?", subdomain).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllActive returns every active agency ordered by subdomain
func (r *GormAgencyRepository) FindAllActive(ctx context.Context) ([]tenancy.Agency, error) {
	var rows []models.AgencyModel
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("subdomain").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	agencies := make([]tenancy.Agency, len(rows))
	for i := range rows {
		agencies[i] = *rows[i].ToDomain()
	}
	return agencies, nil
}

// FindAll returns every agency, active or not, ordered by subdomain
func (r *GormAgencyRepository) FindAll(ctx context.Context) ([]tenancy.Agency, error) {
	var rows []models.AgencyModel
	if err := r.db.WithContext(ctx).Order("subdomain").Find(&rows).Error; err != nil {
		return nil, err
	}
	agencies := make([]tenancy.Agency, len(rows))
	for i := range rows {
		agencies[i] = *rows[i].ToDomain()
	}
	return agencies, nil
}

// Save creates or updates an agency
func (r *GormAgencyRepository) Save(ctx context.Context, agency *tenancy.Agency) error {
	model := models.AgencyModelFromDomain(agency)
	return r.db.WithContext(ctx).Save(model).Error
}

// UpdateSecrets writes the changed credential columns in one transaction
// holding the agency row lock. Columns not named in changes, quota
// counters included, are left as they are.
func (r *GormAgencyRepository) UpdateSecrets(ctx context.Context, id uuid.UUID, changes map[tenancy.CredentialField]string) (*tenancy.Agency, error) {
	columns := make(map[string]any, len(changes)+1)
	for field, blob := range changes {
		column, err := secretColumn(field)
		if err != nil {
			return nil, err
		}
		columns[column] = blob
	}

	var model models.AgencyModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		if len(columns) == 0 {
			return nil
		}

		columns["updated_at"] = time.Now()
		if err := tx.Model(&models.AgencyModel{}).Where("id = ?", id).Updates(columns).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&model).Error
	})
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func secretColumn(field tenancy.CredentialField) (string, error) {
	switch field {
	case tenancy.CredentialGoogleAPIKey,
		tenancy.CredentialStripeAPIKey,
		tenancy.CredentialMailConfig,
		tenancy.CredentialPublicationConfig:
		return string(field) + "_encrypted", nil
	}
	return "", fmt.Errorf("unknown credential field %q", field)
}
