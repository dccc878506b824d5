package tenancy

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
)

// DefaultDailyGenerationLimit is applied to sellers created without an explicit limit
const DefaultDailyGenerationLimit = 5

// Role is the access level of an agency member
type Role string

const (
	RoleAgencyAdmin Role = "agency_admin"
	RoleSeller      Role = "seller"
)

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return r == RoleAgencyAdmin || r == RoleSeller
}

// Seller is an agency member subject to a personal daily generation limit
type Seller struct {
	shared.BaseEntity
	AgencyID uuid.UUID
	Username string
	Email    string
	Role     Role
	IsActive bool

	DailyGenerationLimit int
	GenerationCount      int
	LastGenerationDate   time.Time
}

// NewSeller creates an active seller attached to agencyID
func NewSeller(agencyID uuid.UUID, username, email string, role Role, dailyLimit int, today time.Time) (*Seller, error) {
	if agencyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_AGENCY", "Agency ID cannot be empty")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	}
	if !role.IsValid() {
		return nil, shared.NewDomainError("INVALID_ROLE", "Unknown role")
	}
	if dailyLimit < 0 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Daily generation limit cannot be negative")
	}

	return &Seller{
		BaseEntity:           shared.NewBaseEntity(),
		AgencyID:             agencyID,
		Username:             username,
		Email:                strings.TrimSpace(email),
		Role:                 role,
		IsActive:             true,
		DailyGenerationLimit: dailyLimit,
		LastGenerationDate:   today,
	}, nil
}

// ResetDailyIfStale zeroes the daily counter when the last generation
// happened on another day. Returns true if a reset happened.
func (s *Seller) ResetDailyIfStale(today time.Time) bool {
	if SameDay(s.LastGenerationDate, today) {
		return false
	}
	s.GenerationCount = 0
	s.LastGenerationDate = today
	return true
}

// HasDailyCapacity reports whether one more generation fits the daily limit
func (s *Seller) HasDailyCapacity() bool {
	return s.GenerationCount < s.DailyGenerationLimit
}

// IsAgencyAdmin reports whether the seller may manage agency settings
func (s *Seller) IsAgencyAdmin() bool {
	return s.Role == RoleAgencyAdmin
}
