// Package models holds the GORM row types of the agencies and sellers
// tables and their mapping to the tenancy aggregates. Credential columns
// store vault ciphertext only; nothing here decrypts.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
)

// Timestamps is embedded by every row type
type Timestamps struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func timestampsOf(e shared.BaseEntity) Timestamps {
	return Timestamps{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (t Timestamps) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: t.ID, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}
