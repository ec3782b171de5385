package requests

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/brindes-backend/api/middleware"
	"github.com/angelmondragon/brindes-backend/api/responses"
	"github.com/angelmondragon/brindes-backend/api/validators"
	internalrequests "github.com/angelmondragon/brindes-backend/internal/requests"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/pagination"
)

const maxObservationLength = 2000

type submitLineRequest struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Note     *string `json:"note"`
}

type submitRequest struct {
	CostCenterID    int64               `json:"cost_center_id" validate:"required,gt=0"`
	Justification   string              `json:"justification" validate:"required"`
	Purpose         string              `json:"purpose" validate:"required"`
	DeliveryAddress string              `json:"delivery_address" validate:"required"`
	RequestedByDate *string             `json:"requested_by_date"`
	Notes           *string             `json:"notes"`
	Items           []submitLineRequest `json:"items" validate:"required,min=1,dive"`
}

type decisionRequest struct {
	Observation *string `json:"observation"`
}

type deliveryLineRequest struct {
	LineID   int64 `json:"line_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"min=0"`
}

type deliveryRequest struct {
	Lines        []deliveryLineRequest `json:"lines" validate:"dive"`
	DeliveryDate *string               `json:"delivery_date"`
	Note         *string               `json:"note"`
}

type actor struct {
	id   int64
	role enums.ActorRole
}

func actorFrom(r *http.Request) (actor, error) {
	id := middleware.UserIDFromContext(r.Context())
	role := middleware.RoleFromContext(r.Context())
	if id <= 0 || !role.IsValid() {
		return actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor{id: id, role: role}, nil
}

// List returns the requests visible to the caller, newest first.
func List(query internalrequests.Query, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if query == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests query unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := query.List(r.Context(), filters, who.id, who.role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalrequests.NewRequestListView(*list))
	}
}

func buildListFilters(r *http.Request) (internalrequests.ListFilters, error) {
	var filters internalrequests.ListFilters

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	filters.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseRequestStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
				WithDetails(map[string]any{"field": "status"})
		}
		filters.Status = &status
	}
	if filters.CostCenterID, err = validators.ParseQueryID(r, "cost_center_id"); err != nil {
		return filters, err
	}
	if filters.RequesterID, err = validators.ParseQueryID(r, "requester_id"); err != nil {
		return filters, err
	}
	return filters, nil
}

// Submit creates a pending request for the caller.
func Submit(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestedBy, err := validators.ParseDate("requested_by_date", payload.RequestedByDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalrequests.SubmitInput{
			RequesterID:     who.id,
			CostCenterID:    payload.CostCenterID,
			Justification:   strings.TrimSpace(payload.Justification),
			Purpose:         strings.TrimSpace(payload.Purpose),
			DeliveryAddress: strings.TrimSpace(payload.DeliveryAddress),
			RequestedByDate: requestedBy,
			Notes:           payload.Notes,
			Lines:           make([]internalrequests.LineInput, 0, len(payload.Items)),
		}
		for _, item := range payload.Items {
			input.Lines = append(input.Lines, internalrequests.LineInput{ItemID: item.ItemID, Quantity: item.Quantity, Note: item.Note})
		}

		req, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalrequests.NewRequestView(*req))
	}
}

// Detail returns one request aggregate with lines and approvals.
func Detail(query internalrequests.Query, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if query == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests query unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := query.GetDetail(r.Context(), requestID, who.id, who.role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "request not found"))
			return
		}
		responses.WriteSuccess(w, internalrequests.NewRequestView(*req))
	}
}

// Approvals returns the decision history of a request, newest first.
func Approvals(query internalrequests.Query, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if query == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests query unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		approvals, err := query.ListApprovals(r.Context(), requestID, who.id, who.role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalrequests.NewApprovalViews(approvals))
	}
}

type decisionFunc func(internalrequests.Service, context.Context, internalrequests.DecisionInput) (*models.Request, error)

// Approve records an approval decision.
func Approve(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, internalrequests.Service.Approve)
}

// Reject records a rejection decision.
func Reject(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return decide(svc, logg, internalrequests.Service.Reject)
}

func decide(svc internalrequests.Service, logg *logger.Logger, fn decisionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload decisionRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := fn(svc, r.Context(), internalrequests.DecisionInput{
			RequestID:   requestID,
			ActorID:     who.id,
			ActorRole:   who.role,
			Observation: trimmed(payload.Observation),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalrequests.NewRequestView(*req))
	}
}

// Cancel withdraws a request on behalf of its requester or an approver.
func Cancel(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.Cancel(r.Context(), internalrequests.CancelInput{RequestID: requestID, ActorID: who.id, ActorRole: who.role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalrequests.NewRequestView(*req))
	}
}

// Delivery registers delivered quantities. Calling it again on a delivered
// request overwrites the quantities.
func Delivery(svc internalrequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}
		who, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deliveryRequest
		if err := validators.DecodeOptionalJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveredAt, err := validators.ParseDate("delivery_date", payload.DeliveryDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalrequests.DeliveryInput{
			RequestID:    requestID,
			ActorID:      who.id,
			ActorRole:    who.role,
			DeliveryDate: deliveredAt,
			Note:         trimmed(payload.Note),
			Lines:        make([]internalrequests.DeliveryLineInput, 0, len(payload.Lines)),
		}
		for _, line := range payload.Lines {
			input.Lines = append(input.Lines, internalrequests.DeliveryLineInput{LineID: line.LineID, Quantity: line.Quantity})
		}

		req, err := svc.RegisterDelivery(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalrequests.NewRequestView(*req))
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	clean := validators.SanitizeString(*value, maxObservationLength)
	if clean == "" {
		return nil
	}
	return &clean
}
