package models

import (
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleSales   UserRole = "sales"
	UserRoleSupport UserRole = "support"
)

// Subrole refines the coarse role. Counting a user as a salesperson honours
// either field: role = 'sales' OR subrole = 'salesperson'.
const SubroleSalesperson = "salesperson"

type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	FullName       string     `gorm:"size:200;not null" json:"full_name" binding:"required"`
	Email          string     `gorm:"size:200;uniqueIndex" json:"email"`
	Role           UserRole   `gorm:"size:50;not null;default:'support'" json:"role"`
	Subrole        *string    `gorm:"size:50" json:"subrole"`
	OrganizationId *uuid.UUID `gorm:"type:uuid" json:"organization_id"`
	IsActive       *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate rejects direct user writes from non-service callers. Only the
// ops tooling and the write-path self-test create users through this backend;
// request-path code reads this table exclusively.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if !utils.GetIsServiceRoleFromContext(tx.Statement.Context) {
		return &utils.RichError{
			Code:    utils.ErrCodePermissionDenied,
			Message: "Permission denied by row/column policy",
			Hint:    "Creating users requires the service role.",
		}
	}
	return nil
}
