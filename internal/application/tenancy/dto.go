package tenancy

import (
	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/tenancy"
)

// UpdateCredentialsInput replaces some agency credentials. A nil field is
// left unchanged; a Clear flag empties the field. Setting a value and its
// Clear flag together is rejected.
type UpdateCredentialsInput struct {
	GoogleAPIKey      *string
	StripeAPIKey      *string
	MailConfig        *tenancy.MailConfig
	PublicationConfig *tenancy.PublicationConfig

	ClearGoogleAPIKey      bool
	ClearStripeAPIKey      bool
	ClearMailConfig        bool
	ClearPublicationConfig bool
}

// CredentialStatus tells which credentials an agency has configured.
// It never carries credential values.
type CredentialStatus struct {
	AgencyID          uuid.UUID `json:"agency_id"`
	GoogleAPIKey      bool      `json:"google_api_key"`
	StripeAPIKey      bool      `json:"stripe_api_key"`
	MailConfig        bool      `json:"mail_config"`
	PublicationConfig bool      `json:"publication_config"`
}

// NewCredentialStatus reports the configured fields of agency
func NewCredentialStatus(agency *tenancy.Agency) *CredentialStatus {
	return &CredentialStatus{
		AgencyID:          agency.ID,
		GoogleAPIKey:      agency.HasCredential(tenancy.CredentialGoogleAPIKey),
		StripeAPIKey:      agency.HasCredential(tenancy.CredentialStripeAPIKey),
		MailConfig:        agency.HasCredential(tenancy.CredentialMailConfig),
		PublicationConfig: agency.HasCredential(tenancy.CredentialPublicationConfig),
	}
}

// UnreadableCredential is one blob the current master key cannot open
type UnreadableCredential struct {
	AgencyID  uuid.UUID               `json:"agency_id"`
	Subdomain string                  `json:"subdomain"`
	Field     tenancy.CredentialField `json:"field"`
	Reason    string                  `json:"reason"`
}

// AuditReport summarises a pass over every stored credential
type AuditReport struct {
	AgenciesChecked int                    `json:"agencies_checked"`
	BlobsChecked    int                    `json:"blobs_checked"`
	Unreadable      []UnreadableCredential `json:"unreadable"`
}

// Healthy reports whether every stored blob could be opened
func (r *AuditReport) Healthy() bool {
	return len(r.Unreadable) == 0
}
