package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrganizationId *uuid.UUID      `gorm:"type:uuid" json:"organization_id"`
	SalespersonId  *uuid.UUID      `gorm:"type:uuid;index" json:"salesperson_id"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	CurrentStatus  OrderStatus     `gorm:"size:50;not null;default:'pending'" json:"current_status"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
