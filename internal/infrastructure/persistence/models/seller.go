package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/tenancy"
)

// SellerModel is the persistence model for the Seller aggregate
type SellerModel struct {
	Timestamps
	AgencyID             uuid.UUID    `gorm:"type:uuid;not null;index"`
	Username             string       `gorm:"type:varchar(80);not null;uniqueIndex"`
	Email                string       `gorm:"type:varchar(120)"`
	Role                 tenancy.Role `gorm:"type:varchar(20);not null"`
	IsActive             bool         `gorm:"not null"`
	DailyGenerationLimit int          `gorm:"not null"`
	GenerationCount      int          `gorm:"not null"`
	LastGenerationDate   time.Time    `gorm:"type:date;not null"`
}

// TableName returns the table name for GORM
func (SellerModel) TableName() string {
	return "sellers"
}

// ToDomain converts the persistence model to a domain Seller
func (m *SellerModel) ToDomain() *tenancy.Seller {
	return &tenancy.Seller{
		BaseEntity:           m.Timestamps.entity(),
		AgencyID:             m.AgencyID,
		Username:             m.Username,
		Email:                m.Email,
		Role:                 m.Role,
		IsActive:             m.IsActive,
		DailyGenerationLimit: m.DailyGenerationLimit,
		GenerationCount:      m.GenerationCount,
		LastGenerationDate:   tenancy.Date(m.LastGenerationDate, time.UTC),
	}
}

// FromDomain populates the persistence model from a domain Seller
func (m *SellerModel) FromDomain(s *tenancy.Seller) {
	m.Timestamps = timestampsOf(s.BaseEntity)
	m.AgencyID = s.AgencyID
	m.Username = s.Username
	m.Email = s.Email
	m.Role = s.Role
	m.IsActive = s.IsActive
	m.DailyGenerationLimit = s.DailyGenerationLimit
	m.GenerationCount = s.GenerationCount
	m.LastGenerationDate = s.LastGenerationDate
}

// SellerModelFromDomain creates a new persistence model from a domain Seller
func SellerModelFromDomain(s *tenancy.Seller) *SellerModel {
	m := &SellerModel{}
	m.FromDomain(s)
	return m
}
