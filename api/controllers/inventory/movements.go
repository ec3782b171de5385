package inventory

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/brindes-backend/api/middleware"
	"github.com/angelmondragon/brindes-backend/api/responses"
	"github.com/angelmondragon/brindes-backend/api/validators"
	internalinventory "github.com/angelmondragon/brindes-backend/internal/inventory"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/pagination"
)

type movementRequest struct {
	Type     string  `json:"type" validate:"required,oneof=in out"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Reason   string  `json:"reason" validate:"required"`
	Note     *string `json:"note"`
}

type movementView struct {
	ID        int64                   `json:"id"`
	ItemID    int64                   `json:"item_id"`
	Type      enums.StockMovementType `json:"type"`
	Quantity  int                     `json:"quantity"`
	Reason    string                  `json:"reason"`
	Note      *string                 `json:"note,omitempty"`
	ActorID   int64                   `json:"actor_id"`
	CreatedAt time.Time               `json:"created_at"`
}

type movementResultView struct {
	Movement      movementView `json:"movement"`
	QuantityAfter int          `json:"quantity_after"`
	BelowMinimum  bool         `json:"below_minimum"`
}

type movementListView struct {
	Movements  []movementView `json:"movements"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func newMovementView(m models.StockMovement) movementView {
	return movementView{
		ID:        m.ID,
		ItemID:    m.ItemID,
		Type:      m.Type,
		Quantity:  m.Quantity,
		Reason:    m.Reason,
		Note:      m.Note,
		ActorID:   m.ActorID,
		CreatedAt: m.CreatedAt,
	}
}

// CreateMovement records a stock-in or stock-out for one item.
func CreateMovement(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		itemID, err := validators.ParsePathID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload movementRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movementType, err := enums.ParseStockMovementType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
			return
		}

		result, err := svc.RecordMovement(r.Context(), internalinventory.MovementInput{
			ItemID:    itemID,
			Type:      movementType,
			Quantity:  payload.Quantity,
			Reason:    strings.TrimSpace(payload.Reason),
			Note:      payload.Note,
			ActorID:   userID,
			ActorRole: middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, movementResultView{
			Movement:      newMovementView(result.Movement),
			QuantityAfter: result.Item.Quantity,
			BelowMinimum:  result.Item.BelowMinimum(),
		})
	}
}

// ListMovements pages an item's movement history, newest first.
func ListMovements(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		itemID, err := validators.ParsePathID(r, "itemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMovements(r.Context(), itemID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := movementListView{Movements: make([]movementView, 0, len(list.Movements)), NextCursor: list.NextCursor}
		for _, m := range list.Movements {
			view.Movements = append(view.Movements, newMovementView(m))
		}
		responses.WriteSuccess(w, view)
	}
}

type lowStockView struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Code     *string `json:"code,omitempty"`
	Quantity int     `json:"quantity"`
	MinStock int     `json:"min_stock"`
}

// BelowMinimum lists active items at or under their reorder threshold.
func BelowMinimum(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		items, err := svc.ListBelowMinimum(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]lowStockView, 0, len(items))
		for _, item := range items {
			view := lowStockView{ID: item.ID, Name: item.Name, Code: item.Code, Quantity: item.Quantity}
			if item.MinStock != nil {
				view.MinStock = *item.MinStock
			}
			views = append(views, view)
		}
		responses.WriteSuccess(w, views)
	}
}
