package models

import (
	"time"

	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

// StockMovement records an explicit stock-in or stock-out outside the request flow.
type StockMovement struct {
	ID        int64                   `gorm:"column:id;primaryKey;autoIncrement"`
	ItemID    int64                   `gorm:"column:item_id;not null;index"`
	Type      enums.StockMovementType `gorm:"column:type;not null"`
	Quantity  int                     `gorm:"column:quantity;not null"`
	Reason    string                  `gorm:"column:reason;not null"`
	Note      *string                 `gorm:"column:note"`
	ActorID   int64                   `gorm:"column:actor_id;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}
