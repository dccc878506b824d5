package models

import (
	"time"

	"github.com/odyssee/backend/internal/domain/tenancy"
)

// AgencyModel is the persistence model for the Agency aggregate.
// Column defaults live in the SQL migrations; GORM default tags would
// override explicit zero values on insert.
type AgencyModel struct {
	Timestamps
	Name                       string    `gorm:"type:varchar(200);not null"`
	Subdomain                  string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	IsActive                   bool      `gorm:"not null"`
	GoogleAPIKeyEncrypted      string    `gorm:"column:google_api_key_encrypted;type:text;not null"`
	StripeAPIKeyEncrypted      string    `gorm:"column:stripe_api_key_encrypted;type:text;not null"`
	MailConfigEncrypted        string    `gorm:"column:mail_config_encrypted;type:text;not null"`
	PublicationConfigEncrypted string    `gorm:"column:publication_config_encrypted;type:text;not null"`
	MonthlyGenerationLimit     int       `gorm:"not null"`
	CurrentMonthUsage          int       `gorm:"not null"`
	UsageResetDate             time.Time `gorm:"type:date;not null"`
}

// TableName returns the table name for GORM
func (AgencyModel) TableName() string {
	return "agencies"
}

// ToDomain converts the persistence model to a domain Agency
func (m *AgencyModel) ToDomain() *tenancy.Agency {
	return &tenancy.Agency{
		BaseEntity: m.Timestamps.entity(),
		Name:       m.Name,
		Subdomain:  m.Subdomain,
		IsActive:   m.IsActive,
		Secrets: tenancy.EncryptedSecrets{
			GoogleAPIKey:      m.GoogleAPIKeyEncrypted,
			StripeAPIKey:      m.StripeAPIKeyEncrypted,
			MailConfig:        m.MailConfigEncrypted,
			PublicationConfig: m.PublicationConfigEncrypted,
		},
		MonthlyGenerationLimit: m.MonthlyGenerationLimit,
		CurrentMonthUsage:      m.CurrentMonthUsage,
		UsageResetDate:         tenancy.Date(m.UsageResetDate, time.UTC),
	}
}

// FromDomain populates the persistence model from a domain Agency
func (m *AgencyModel) FromDomain(a *tenancy.Agency) {
	m.Timestamps = timestampsOf(a.BaseEntity)
	m.Name = a.Name
	m.Subdomain = a.Subdomain
	m.IsActive = a.IsActive
	m.GoogleAPIKeyEncrypted = a.Secrets.GoogleAPIKey
	m.StripeAPIKeyEncrypted = a.Secrets.StripeAPIKey
	m.MailConfigEncrypted = a.Secrets.MailConfig
	m.PublicationConfigEncrypted = a.Secrets.PublicationConfig
	m.MonthlyGenerationLimit = a.MonthlyGenerationLimit
	m.CurrentMonthUsage = a.CurrentMonthUsage
	m.UsageResetDate = a.UsageResetDate
}

// AgencyModelFromDomain creates a new persistence model from a domain Agency
func AgencyModelFromDomain(a *tenancy.Agency) *AgencyModel {
	m := &AgencyModel{}
	m.FromDomain(a)
	return m
}
