package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostCenter is the budget-holding unit a gift request is charged against.
// A null ceiling means the corresponding limit does not apply.
type CostCenter struct {
	ID             int64               `gorm:"column:id;primaryKey;autoIncrement"`
	Name           string              `gorm:"column:name;not null;uniqueIndex"`
	BudgetCeiling  decimal.NullDecimal `gorm:"column:budget_ceiling;type:numeric(14,2)"`
	UtilizedAmount decimal.Decimal     `gorm:"column:utilized_amount;type:numeric(14,2);not null"`
	ManagerCeiling decimal.NullDecimal `gorm:"column:manager_ceiling;type:numeric(14,2)"`
	EventCeiling   decimal.NullDecimal `gorm:"column:event_ceiling;type:numeric(14,2)"`
	// SectorCeiling is stored for reporting; approval routing ignores it.
	SectorCeiling decimal.NullDecimal `gorm:"column:sector_ceiling;type:numeric(14,2)"`
	Active        bool                `gorm:"column:active;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableBudget returns ceiling minus utilized, or false when no ceiling is set.
func (c CostCenter) AvailableBudget() (decimal.Decimal, bool) {
	if !c.BudgetCeiling.Valid {
		return decimal.Zero, false
	}
	return c.BudgetCeiling.Decimal.Sub(c.UtilizedAmount), true
}
