package inventory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
)

// Ledger moves on-hand quantities inside a transaction owned by the caller.
type Ledger struct {
	repo Repository
}

// NewLedger builds a stock ledger over repo.
func NewLedger(repo Repository) (*Ledger, error) {
	if repo == nil {
		return nil, errors.New("inventory repository required")
	}
	return &Ledger{repo: repo}, nil
}

// Reserve decrements itemID by qty. It fails with INSUFFICIENT_STOCK instead of
// letting the quantity go negative.
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	repo := l.repo.WithTx(tx)
	ok, err := repo.Decrement(ctx, itemID, qty)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	item, err := repo.FindItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeInvalidItem, "item not found").
				WithDetails(map[string]any{"item_id": itemID})
		}
		return err
	}
	return InsufficientStock(*item, qty)
}

// Restore returns qty units of itemID to stock.
func (l *Ledger) Restore(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return l.repo.WithTx(tx).Increment(ctx, itemID, qty)
}

// InsufficientStock builds the error reported when item cannot cover requested.
func InsufficientStock(item models.InventoryItem, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+item.Name).
		WithDetails(map[string]any{
			"item_id":   item.ID,
			"item_name": item.Name,
			"available": item.Quantity,
			"requested": requested,
		})
}
