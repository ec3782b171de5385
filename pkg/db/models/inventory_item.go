package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is a catalog gift with its on-hand quantity.
type InventoryItem struct {
	ID        int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string              `gorm:"column:name;not null;uniqueIndex"`
	Code      *string             `gorm:"column:code"`
	Quantity  int                 `gorm:"column:quantity;not null"`
	UnitPrice decimal.NullDecimal `gorm:"column:unit_price;type:numeric(14,2)"`
	MinStock  *int                `gorm:"column:min_stock"`
	Active    bool                `gorm:"column:active;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BelowMinimum reports whether the on-hand quantity reached the reorder threshold.
func (i InventoryItem) BelowMinimum() bool {
	return i.MinStock != nil && i.Quantity <= *i.MinStock
}
