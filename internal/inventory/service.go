package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/pkg/db"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/outbox"
	"github.com/angelmondragon/brindes-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes explicit stock movements and catalog lookups.
type Service interface {
	RecordMovement(ctx context.Context, input MovementInput) (*MovementResult, error)
	ListMovements(ctx context.Context, itemID int64, params pagination.Params) (*MovementList, error)
	ListBelowMinimum(ctx context.Context) ([]models.InventoryItem, error)
	FindItems(ctx context.Context, ids []int64) ([]models.InventoryItem, error)
}

// MovementInput describes a stock-in or stock-out performed by a catalog operator.
type MovementInput struct {
	ItemID    int64
	Type      enums.StockMovementType
	Quantity  int
	Reason    string
	Note      *string
	ActorID   int64
	ActorRole enums.ActorRole
}

// MovementResult is the stored movement with the item's quantity after it.
type MovementResult struct {
	Movement models.StockMovement
	Item     models.InventoryItem
}

// MovementList is a page of movements, newest first.
type MovementList struct {
	Movements  []models.StockMovement
	NextCursor string
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the stock movement service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("inventory repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg}, nil
}

func (s *service) RecordMovement(ctx context.Context, input MovementInput) (*MovementResult, error) {
	if !input.ActorRole.CanManageCatalog() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only catalog administrators or directors may move stock")
	}
	if input.ItemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid movement type")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var result MovementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindItem(ctx, input.ItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
			}
			return fmt.Errorf("load item: %w", err)
		}

		switch input.Type {
		case enums.StockMovementOut:
			ok, err := repo.Decrement(ctx, item.ID, input.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if !ok {
				return InsufficientStock(*item, input.Quantity)
			}
			item.Quantity -= input.Quantity
		default:
			if err := repo.Increment(ctx, item.ID, input.Quantity); err != nil {
				return fmt.Errorf("increment stock: %w", err)
			}
			item.Quantity += input.Quantity
		}

		movement := models.StockMovement{
			ItemID:   item.ID,
			Type:     input.Type,
			Quantity: input.Quantity,
			Reason:   reason,
			Note:     input.Note,
			ActorID:  input.ActorID,
		}
		if err := repo.CreateMovement(ctx, &movement); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}

		result = MovementResult{Movement: movement, Item: *item}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockMoved,
			AggregateType: enums.AggregateInventoryItem,
			AggregateID:   item.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: input.ActorRole.String()},
			Data: outbox.StockMovedEvent{
				MovementID:  movement.ID,
				ItemID:      item.ID,
				Type:        input.Type,
				Quantity:    input.Quantity,
				QuantityNow: item.Quantity,
				Reason:      reason,
			},
			OccurredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, classifyTxError(err, "record movement")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"item_id":      result.Item.ID,
		"movement_id":  result.Movement.ID,
		"type":         input.Type,
		"quantity":     input.Quantity,
		"quantity_now": result.Item.Quantity,
	})
	s.logg.Info(logCtx, "inventory.stock_moved")
	if result.Item.BelowMinimum() {
		s.logg.Warn(logCtx, "inventory.below_minimum")
	}
	return &result, nil
}

func (s *service) ListMovements(ctx context.Context, itemID int64, params pagination.Params) (*MovementList, error) {
	if itemID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if _, err := s.repo.FindItem(ctx, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}

	rows, err := s.repo.ListMovements(ctx, itemID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
	}

	list := &MovementList{}
	list.Movements, list.NextCursor = pagination.Trim(rows, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return list, nil
}

func (s *service) ListBelowMinimum(ctx context.Context) ([]models.InventoryItem, error) {
	items, err := s.repo.ListBelowMinimum(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list low stock items")
	}
	return items, nil
}

func (s *service) FindItems(ctx context.Context, ids []int64) ([]models.InventoryItem, error) {
	return s.repo.FindItems(ctx, ids)
}

// classifyTxError keeps typed domain errors, marks serialization and lock
// failures as retryable conflicts and everything else as a store failure.
func classifyTxError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
