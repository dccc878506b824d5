package tenancy

import (
	"context"

	"github.com/google/uuid"
)

// AgencyRepository persists agencies
type AgencyRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Agency, error)
	FindBySubdomain(ctx context.Context, subdomain string) (*Agency, error)
	FindAllActive(ctx context.Context) ([]Agency, error)
	// FindAll includes inactive agencies
	FindAll(ctx context.Context) ([]Agency, error)
	Save(ctx context.Context, agency *Agency) error
	// UpdateSecrets writes only the given blobs under the agency row lock
	// and returns the agency as stored afterwards. An empty blob clears
	// the credential.
	UpdateSecrets(ctx context.Context, id uuid.UUID, changes map[CredentialField]string) (*Agency, error)
}

// SellerRepository persists sellers
type SellerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Seller, error)
	// FindByIDForAgency returns shared.ErrNotFound when the seller belongs to another agency
	FindByIDForAgency(ctx context.Context, agencyID, id uuid.UUID) (*Seller, error)
	Save(ctx context.Context, seller *Seller) error
}
