package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSellerRepository implements tenancy.SellerRepository using GORM
type GormSellerRepository struct {
	db *gorm.DB
}

// NewGormSellerRepository creates a new GormSellerRepository
func NewGormSellerRepository(db *gorm.DB) *GormSellerRepository {
	return &GormSellerRepository{db: db}
}

var _ tenancy.SellerRepository = (*GormSellerRepository)(nil)

// FindByID finds a seller by its ID
func (r *GormSellerRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenancy.Seller, error) {
	var model models.SellerModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForAgency finds a seller that belongs to agencyID
func (r *GormSellerRepository) FindByIDForAgency(ctx context.Context, agencyID, id uuid.UUID) (*tenancy.Seller, error) {
	var model models.SellerModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND agency_id = ?", id, agencyID).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a seller
func (r *GormSellerRepository) Save(ctx context.Context, seller *tenancy.Seller) error {
	model := models.SellerModelFromDomain(seller)
	return r.db.WithContext(ctx).Save(model).Error
}
