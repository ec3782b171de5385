package outbox

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

// RequestTransitionEvent is the data carried by every gift request lifecycle event.
type RequestTransitionEvent struct {
	RequestID    int64               `json:"requestId"`
	Number       string              `json:"number"`
	CostCenterID int64               `json:"costCenterId"`
	RequesterID  int64               `json:"requesterId"`
	From         enums.RequestStatus `json:"from,omitempty"`
	To           enums.RequestStatus `json:"to"`
	Total        decimal.Decimal     `json:"total"`
	Tier         enums.ApprovalTier  `json:"tier,omitempty"`
	// BudgetDelta is the change applied to the cost center's utilized amount.
	BudgetDelta decimal.Decimal `json:"budgetDelta"`
	// StockDelta maps item id to the quantity change applied by the transition.
	StockDelta map[int64]int `json:"stockDelta,omitempty"`
	At         time.Time     `json:"at"`
}

// StockMovedEvent is emitted when stock is moved outside the request flow.
type StockMovedEvent struct {
	MovementID  int64                   `json:"movementId"`
	ItemID      int64                   `json:"itemId"`
	Type        enums.StockMovementType `json:"type"`
	Quantity    int                     `json:"quantity"`
	QuantityNow int                     `json:"quantityNow"`
	Reason      string                  `json:"reason"`
}
