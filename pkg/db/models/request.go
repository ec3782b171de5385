package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

// Request is a gift request. Total is fixed at creation and never recomputed.
type Request struct {
	ID              int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Number          string              `gorm:"column:number;not null;uniqueIndex"`
	RequesterID     int64               `gorm:"column:requester_id;not null"`
	CostCenterID    int64               `gorm:"column:cost_center_id;not null"`
	Justification   string              `gorm:"column:justification;not null"`
	Purpose         string              `gorm:"column:purpose;not null"`
	DeliveryAddress string              `gorm:"column:delivery_address;not null"`
	RequestedByDate *time.Time          `gorm:"column:requested_by_date"`
	Total           decimal.Decimal     `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Status          enums.RequestStatus `gorm:"column:status;not null"`
	DeliveryDate    *time.Time          `gorm:"column:delivery_date"`
	Notes           *string             `gorm:"column:notes"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	CostCenter *CostCenter   `gorm:"foreignKey:CostCenterID"`
	Lines      []RequestLine `gorm:"foreignKey:RequestID"`
	Approvals  []Approval    `gorm:"foreignKey:RequestID"`
}

// RequestLine is one item entry of a request. UnitPrice is the catalog price
// captured at submission.
type RequestLine struct {
	ID                int64               `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID         int64               `gorm:"column:request_id;not null;index"`
	ItemID            int64               `gorm:"column:item_id;not null"`
	Quantity          int                 `gorm:"column:quantity;not null"`
	UnitPrice         decimal.NullDecimal `gorm:"column:unit_price;type:numeric(14,2)"`
	DeliveredQuantity *int                `gorm:"column:delivered_quantity"`
	Note              *string             `gorm:"column:note"`

	Item *InventoryItem `gorm:"foreignKey:ItemID"`
}

// Subtotal is quantity times the snapshotted unit price, zero when unpriced.
func (l RequestLine) Subtotal() decimal.Decimal {
	if !l.UnitPrice.Valid {
		return decimal.Zero
	}
	return l.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Approval is an append-only decision record.
type Approval struct {
	ID          int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID   int64                  `gorm:"column:request_id;not null;index"`
	ApproverID  int64                  `gorm:"column:approver_id;not null"`
	Decision    enums.ApprovalDecision `gorm:"column:decision;not null"`
	Observation *string                `gorm:"column:observation"`
	Tier        enums.ApprovalTier     `gorm:"column:tier;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
