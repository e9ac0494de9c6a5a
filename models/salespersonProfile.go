package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalespersonProfile is the optional detail record for a selling user.
// A qualifying user without a profile row is still an active salesperson;
// only an explicit is_active = false on the profile excludes them.
type SalespersonProfile struct {
	ID             int              `gorm:"primary_key" json:"id"`
	UserId         uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex" json:"user_id" binding:"required"`
	Region         string           `gorm:"size:100" json:"region"`
	CommissionRate *decimal.Decimal `gorm:"type:numeric(6,4)" json:"commission_rate"`
	IsActive       *bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
