package requests

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	"github.com/angelmondragon/brindes-backend/pkg/outbox"
	"github.com/angelmondragon/brindes-backend/pkg/pagination"
)

// Repository defines persistence operations for gift requests and the cost
// centers they are charged against.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCostCenter(ctx context.Context, id int64) (*models.CostCenter, error)
	CreateRequest(ctx context.Context, request *models.Request) error
	FindRequest(ctx context.Context, id int64) (*models.Request, error)
	FindStatus(ctx context.Context, id int64) (enums.RequestStatus, error)
	TransitionStatus(ctx context.Context, id int64, from []enums.RequestStatus, to enums.RequestStatus, updates map[string]any) (bool, error)
	InsertApproval(ctx context.Context, approval *models.Approval) error
	AdjustUtilized(ctx context.Context, costCenterID int64, delta decimal.Decimal) error
	UpdateDeliveredQuantity(ctx context.Context, requestID, lineID int64, qty int) error
	List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Request, error)
	ListApprovals(ctx context.Context, requestID int64) ([]models.Approval, error)
}

// ItemCatalog resolves catalog items referenced by a submission.
type ItemCatalog interface {
	FindItems(ctx context.Context, ids []int64) ([]models.InventoryItem, error)
}

// StockLedger moves on-hand quantities inside the caller's transaction.
type StockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error
	Restore(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives a gift request through its lifecycle. Every operation
// returns the refreshed aggregate.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Request, error)
	Approve(ctx context.Context, input DecisionInput) (*models.Request, error)
	Reject(ctx context.Context, input DecisionInput) (*models.Request, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Request, error)
	RegisterDelivery(ctx context.Context, input DeliveryInput) (*models.Request, error)
}

// Query is the read side used by listings and detail views.
type Query interface {
	List(ctx context.Context, filters ListFilters, actorID int64, role enums.ActorRole) (*RequestList, error)
	GetDetail(ctx context.Context, id, actorID int64, role enums.ActorRole) (*models.Request, error)
	ListApprovals(ctx context.Context, requestID, actorID int64, role enums.ActorRole) ([]models.Approval, error)
}
