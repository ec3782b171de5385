package requests

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

// LineInput is one requested item of a submission.
type LineInput struct {
	ItemID   int64
	Quantity int
	Note     *string
}

// SubmitInput carries a new gift request.
type SubmitInput struct {
	RequesterID     int64
	CostCenterID    int64
	Justification   string
	Purpose         string
	DeliveryAddress string
	RequestedByDate *time.Time
	Notes           *string
	Lines           []LineInput
}

// DecisionInput is shared by approve and reject.
type DecisionInput struct {
	RequestID   int64
	ActorID     int64
	ActorRole   enums.ActorRole
	Observation *string
}

type CancelInput struct {
	RequestID int64
	ActorID   int64
	ActorRole enums.ActorRole
}

// DeliveryLineInput sets the delivered quantity of one request line.
type DeliveryLineInput struct {
	LineID   int64
	Quantity int
}

// DeliveryInput registers a (possibly partial) physical delivery. Lines left
// out default to their full requested quantity.
type DeliveryInput struct {
	RequestID    int64
	ActorID      int64
	ActorRole    enums.ActorRole
	Lines        []DeliveryLineInput
	DeliveryDate *time.Time
	Note         *string
}

// ListFilters narrows request listings.
type ListFilters struct {
	Status       *enums.RequestStatus
	CostCenterID *int64
	RequesterID  *int64
	Limit        int
	Cursor       string
}

// RequestList is a page of requests, newest first.
type RequestList struct {
	Requests   []models.Request
	NextCursor string
}

// CostCenterSummary is the cost center as embedded in request views.
type CostCenterSummary struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	BudgetCeiling  *decimal.Decimal `json:"budget_ceiling,omitempty"`
	UtilizedAmount decimal.Decimal  `json:"utilized_amount"`
}

// ItemSummary is the catalog item as embedded in request lines.
type ItemSummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Code     *string `json:"code,omitempty"`
	Quantity int     `json:"quantity"`
}

type LineView struct {
	ID                int64            `json:"id"`
	ItemID            int64            `json:"item_id"`
	Item              *ItemSummary     `json:"item,omitempty"`
	Quantity          int              `json:"quantity"`
	UnitPrice         *decimal.Decimal `json:"unit_price,omitempty"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	DeliveredQuantity *int             `json:"delivered_quantity,omitempty"`
	Note              *string          `json:"note,omitempty"`
}

type ApprovalView struct {
	ID          int64                  `json:"id"`
	ApproverID  int64                  `json:"approver_id"`
	Decision    enums.ApprovalDecision `json:"decision"`
	Tier        enums.ApprovalTier     `json:"tier"`
	Observation *string                `json:"observation,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// RequestView is the JSON rendering of a request aggregate.
type RequestView struct {
	ID              int64               `json:"id"`
	Number          string              `json:"number"`
	RequesterID     int64               `json:"requester_id"`
	CostCenterID    int64               `json:"cost_center_id"`
	CostCenter      *CostCenterSummary  `json:"cost_center,omitempty"`
	Justification   string              `json:"justification"`
	Purpose         string              `json:"purpose"`
	DeliveryAddress string              `json:"delivery_address"`
	RequestedByDate *time.Time          `json:"requested_by_date,omitempty"`
	Total           decimal.Decimal     `json:"total"`
	Status          enums.RequestStatus `json:"status"`
	DeliveryDate    *time.Time          `json:"delivery_date,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	Lines           []LineView          `json:"lines"`
	Approvals       []ApprovalView      `json:"approvals"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// RequestListView is the JSON rendering of a RequestList.
type RequestListView struct {
	Requests   []RequestView `json:"requests"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// NewRequestView maps a loaded aggregate to its JSON view.
func NewRequestView(req models.Request) RequestView {
	view := RequestView{
		ID:              req.ID,
		Number:          req.Number,
		RequesterID:     req.RequesterID,
		CostCenterID:    req.CostCenterID,
		Justification:   req.Justification,
		Purpose:         req.Purpose,
		DeliveryAddress: req.DeliveryAddress,
		RequestedByDate: req.RequestedByDate,
		Total:           req.Total,
		Status:          req.Status,
		DeliveryDate:    req.DeliveryDate,
		Notes:           req.Notes,
		Lines:           make([]LineView, 0, len(req.Lines)),
		Approvals:       NewApprovalViews(req.Approvals),
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
	if cc := req.CostCenter; cc != nil {
		view.CostCenter = &CostCenterSummary{
			ID:             cc.ID,
			Name:           cc.Name,
			BudgetCeiling:  nullable(cc.BudgetCeiling),
			UtilizedAmount: cc.UtilizedAmount,
		}
	}
	for _, line := range req.Lines {
		lv := LineView{
			ID:                line.ID,
			ItemID:            line.ItemID,
			Quantity:          line.Quantity,
			UnitPrice:         nullable(line.UnitPrice),
			Subtotal:          line.Subtotal(),
			DeliveredQuantity: line.DeliveredQuantity,
			Note:              line.Note,
		}
		if line.Item != nil {
			lv.Item = &ItemSummary{ID: line.Item.ID, Name: line.Item.Name, Code: line.Item.Code, Quantity: line.Item.Quantity}
		}
		view.Lines = append(view.Lines, lv)
	}
	return view
}

// NewApprovalViews maps approval rows preserving their order.
func NewApprovalViews(approvals []models.Approval) []ApprovalView {
	views := make([]ApprovalView, 0, len(approvals))
	for _, a := range approvals {
		views = append(views, ApprovalView{
			ID:          a.ID,
			ApproverID:  a.ApproverID,
			Decision:    a.Decision,
			Tier:        a.Tier,
			Observation: a.Observation,
			CreatedAt:   a.CreatedAt,
		})
	}
	return views
}

// NewRequestListView maps a listing page.
func NewRequestListView(list RequestList) RequestListView {
	views := make([]RequestView, 0, len(list.Requests))
	for _, req := range list.Requests {
		views = append(views, NewRequestView(req))
	}
	return RequestListView{Requests: views, NextCursor: list.NextCursor}
}

func nullable(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
