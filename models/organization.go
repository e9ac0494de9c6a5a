package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name           string    `gorm:"size:200;not null" json:"name" binding:"required"`
	BrandPrimary   *string   `gorm:"size:20" json:"brand_primary"`
	BrandSecondary *string   `gorm:"size:20" json:"brand_secondary"`
	IsActive       *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
