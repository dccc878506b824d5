package tenancy

import (
	"regexp"
	"strings"
	"time"

	"github.com/odyssee/backend/internal/domain/shared"
)

// DefaultMonthlyGenerationLimit is applied to agencies created without an explicit limit
const DefaultMonthlyGenerationLimit = 100

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// EncryptedSecrets holds the agency credential blobs exactly as persisted.
// Each field is either empty (not configured) or vault ciphertext.
type EncryptedSecrets struct {
	GoogleAPIKey      string
	StripeAPIKey      string
	MailConfig        string
	PublicationConfig string
}

// Get returns the blob stored for field
func (s EncryptedSecrets) Get(field CredentialField) string {
	switch field {
	case CredentialGoogleAPIKey:
		return s.GoogleAPIKey
	case CredentialStripeAPIKey:
		return s.StripeAPIKey
	case CredentialMailConfig:
		return s.MailConfig
	case CredentialPublicationConfig:
		return s.PublicationConfig
	}
	return ""
}

// Set replaces the blob stored for field
func (s *EncryptedSecrets) Set(field CredentialField, blob string) {
	switch field {
	case CredentialGoogleAPIKey:
		s.GoogleAPIKey = blob
	case CredentialStripeAPIKey:
		s.StripeAPIKey = blob
	case CredentialMailConfig:
		s.MailConfig = blob
	case CredentialPublicationConfig:
		s.PublicationConfig = blob
	}
}

// Agency is a travel agency tenant. It owns the monthly generation quota
// shared by all of its sellers.
type Agency struct {
	shared.BaseEntity
	Name      string
	Subdomain string
	IsActive  bool
	Secrets   EncryptedSecrets

	MonthlyGenerationLimit int
	CurrentMonthUsage      int
	// UsageResetDate is the first day of the month in which CurrentMonthUsage is valid
	UsageResetDate time.Time
}

// NewAgency creates an active agency whose usage window starts in the month of today
func NewAgency(name, subdomain string, monthlyLimit int, today time.Time) (*Agency, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_AGENCY_NAME", "Agency name cannot be empty")
	}
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if !subdomainPattern.MatchString(subdomain) {
		return nil, shared.NewDomainError("INVALID_SUBDOMAIN", "Subdomain must be a lowercase DNS label")
	}
	if monthlyLimit < 0 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Monthly generation limit cannot be negative")
	}

	return &Agency{
		BaseEntity:             shared.NewBaseEntity(),
		Name:                   name,
		Subdomain:              subdomain,
		IsActive:               true,
		MonthlyGenerationLimit: monthlyLimit,
		UsageResetDate:         FirstOfMonth(today),
	}, nil
}

// ResetMonthlyIfStale zeroes the monthly counter when the usage window
// started before the month of today. The window snaps to the current
// month rather than advancing one month at a time, so a long outage does
// not leave a stale window behind. Returns true if a reset happened.
func (a *Agency) ResetMonthlyIfStale(today time.Time) bool {
	current := FirstOfMonth(today)
	if !a.UsageResetDate.Before(current) {
		return false
	}
	a.CurrentMonthUsage = 0
	a.UsageResetDate = current
	return true
}

// NextResetDate is the first day after the current usage window
func (a *Agency) NextResetDate() time.Time {
	return FirstOfNextMonth(a.UsageResetDate)
}

// HasMonthlyCapacity reports whether one more generation fits the monthly limit
func (a *Agency) HasMonthlyCapacity() bool {
	return a.CurrentMonthUsage < a.MonthlyGenerationLimit
}

// HasCredential reports whether a blob is stored for field
func (a *Agency) HasCredential(field CredentialField) bool {
	return a.Secrets.Get(field) != ""
}
