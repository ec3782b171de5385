package requests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/brindes-backend/api/middleware"
	internalrequests "github.com/angelmondragon/brindes-backend/internal/requests"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
)

type stubService struct {
	submit   func(ctx context.Context, input internalrequests.SubmitInput) (*models.Request, error)
	approve  func(ctx context.Context, input internalrequests.DecisionInput) (*models.Request, error)
	reject   func(ctx context.Context, input internalrequests.DecisionInput) (*models.Request, error)
	cancel   func(ctx context.Context, input internalrequests.CancelInput) (*models.Request, error)
	delivery func(ctx context.Context, input internalrequests.DeliveryInput) (*models.Request, error)
}

func (s *stubService) Submit(ctx context.Context, input internalrequests.SubmitInput) (*models.Request, error) {
	return s.submit(ctx, input)
}

func (s *stubService) Approve(ctx context.Context, input internalrequests.DecisionInput) (*models.Request, error) {
	return s.approve(ctx, input)
}

func (s *stubService) Reject(ctx context.Context, input internalrequests.DecisionInput) (*models.Request, error) {
	return s.reject(ctx, input)
}

func (s *stubService) Cancel(ctx context.Context, input internalrequests.CancelInput) (*models.Request, error) {
	return s.cancel(ctx, input)
}

func (s *stubService) RegisterDelivery(ctx context.Context, input internalrequests.DeliveryInput) (*models.Request, error) {
	return s.delivery(ctx, input)
}

type stubQuery struct {
	list      func(ctx context.Context, filters internalrequests.ListFilters, actorID int64, role enums.ActorRole) (*internalrequests.RequestList, error)
	detail    func(ctx context.Context, id, actorID int64, role enums.ActorRole) (*models.Request, error)
	approvals func(ctx context.Context, requestID, actorID int64, role enums.ActorRole) ([]models.Approval, error)
}

func (s *stubQuery) List(ctx context.Context, filters internalrequests.ListFilters, actorID int64, role enums.ActorRole) (*internalrequests.RequestList, error) {
	return s.list(ctx, filters, actorID, role)
}

func (s *stubQuery) GetDetail(ctx context.Context, id, actorID int64, role enums.ActorRole) (*models.Request, error) {
	return s.detail(ctx, id, actorID, role)
}

func (s *stubQuery) ListApprovals(ctx context.Context, requestID, actorID int64, role enums.ActorRole) ([]models.Approval, error) {
	return s.approvals(ctx, requestID, actorID, role)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func sampleRequest(status enums.RequestStatus) *models.Request {
	return &models.Request{
		ID:          7,
		Number:      "SOL-2024-000123",
		RequesterID: 10,
		Total:       decimal.RequireFromString("150.00"),
		Status:      status,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newRequest(method, target, body string, userID int64, role enums.ActorRole, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithActor(req.Context(), userID, role)
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}

func TestSubmitMapsPayload(t *testing.T) {
	var captured internalrequests.SubmitInput
	svc := &stubService{submit: func(ctx context.Context, input internalrequests.SubmitInput) (*models.Request, error) {
		captured = input
		return sampleRequest(enums.RequestStatusPending), nil
	}}

	body := `{"cost_center_id":3,"justification":" fair ","purpose":"event","delivery_address":"HQ","requested_by_date":"2024-04-10","items":[{"item_id":5,"quantity":2}]}`
	resp := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/requests", body, 10, enums.ActorRoleRequester, nil))

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.EqualValues(t, 10, captured.RequesterID)
	assert.EqualValues(t, 3, captured.CostCenterID)
	assert.Equal(t, "fair", captured.Justification)
	require.NotNil(t, captured.RequestedByDate)
	assert.Equal(t, time.April, captured.RequestedByDate.Month())
	require.Len(t, captured.Lines, 1)
	assert.Equal(t, internalrequests.LineInput{ItemID: 5, Quantity: 2}, captured.Lines[0])

	var view internalrequests.RequestView
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &view))
	assert.Equal(t, "SOL-2024-000123", view.Number)
	assert.Equal(t, "150", view.Total.String())
}

func TestSubmitRejectsEmptyItems(t *testing.T) {
	svc := &stubService{submit: func(ctx context.Context, input internalrequests.SubmitInput) (*models.Request, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	body := `{"cost_center_id":3,"justification":"x","purpose":"y","delivery_address":"z","items":[]}`
	resp := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/v1/requests", body, 10, enums.ActorRoleRequester, nil))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decode(t, resp).Error.Code)
}

func TestSubmitRequiresActor(t *testing.T) {
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(`{}`))
	Submit(&stubService{}, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestListBuildsFilters(t *testing.T) {
	var captured internalrequests.ListFilters
	var capturedRole enums.ActorRole
	query := &stubQuery{list: func(ctx context.Context, filters internalrequests.ListFilters, actorID int64, role enums.ActorRole) (*internalrequests.RequestList, error) {
		captured = filters
		capturedRole = role
		return &internalrequests.RequestList{Requests: []models.Request{*sampleRequest(enums.RequestStatusApproved)}, NextCursor: "next"}, nil
	}}

	resp := httptest.NewRecorder()
	List(query, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/api/v1/requests?status=approved&cost_center_id=4&limit=10&cursor=abc", "", 20, enums.ActorRoleManager, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, captured.Status)
	assert.Equal(t, enums.RequestStatusApproved, *captured.Status)
	require.NotNil(t, captured.CostCenterID)
	assert.EqualValues(t, 4, *captured.CostCenterID)
	assert.Nil(t, captured.RequesterID)
	assert.Equal(t, 10, captured.Limit)
	assert.Equal(t, "abc", captured.Cursor)
	assert.Equal(t, enums.ActorRoleManager, capturedRole)

	var view internalrequests.RequestListView
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &view))
	assert.Len(t, view.Requests, 1)
	assert.Equal(t, "next", view.NextCursor)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	resp := httptest.NewRecorder()
	List(&stubQuery{}, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/api/v1/requests?status=lost", "", 20, enums.ActorRoleManager, nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDetailNotFound(t *testing.T) {
	query := &stubQuery{detail: func(ctx context.Context, id, actorID int64, role enums.ActorRole) (*models.Request, error) {
		return nil, nil
	}}

	resp := httptest.NewRecorder()
	Detail(query, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", 10, enums.ActorRoleRequester, map[string]string{"requestId": "99"}))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestApprovalsPassesIdentity(t *testing.T) {
	query := &stubQuery{approvals: func(ctx context.Context, requestID, actorID int64, role enums.ActorRole) ([]models.Approval, error) {
		assert.EqualValues(t, 7, requestID)
		assert.EqualValues(t, 30, actorID)
		return []models.Approval{{ID: 1, ApproverID: 30, Decision: enums.ApprovalDecisionApproved, Tier: enums.ApprovalTierDirector}}, nil
	}}

	resp := httptest.NewRecorder()
	Approvals(query, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/", "", 30, enums.ActorRoleDirector, map[string]string{"requestId": "7"}))

	require.Equal(t, http.StatusOK, resp.Code)
	var views []internalrequests.ApprovalView
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, enums.ApprovalTierDirector, views[0].Tier)
}

func TestApproveSurfacesDomainErrors(t *testing.T) {
	svc := &stubService{approve: func(ctx context.Context, input internalrequests.DecisionInput) (*models.Request, error) {
		assert.EqualValues(t, 7, input.RequestID)
		require.NotNil(t, input.Observation)
		assert.Equal(t, "ok", *input.Observation)
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientTier, "director approval required").
			WithDetails(map[string]any{"required_tier": "director"})
	}}

	resp := httptest.NewRecorder()
	Approve(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", `{"observation":"  ok "}`, 20, enums.ActorRoleManager, map[string]string{"requestId": "7"}))

	require.Equal(t, http.StatusForbidden, resp.Code)
	env := decode(t, resp)
	assert.Equal(t, string(pkgerrors.CodeInsufficientTier), env.Error.Code)
	assert.Equal(t, "director", env.Error.Details["required_tier"])
}

func TestRejectAcceptsEmptyBody(t *testing.T) {
	svc := &stubService{reject: func(ctx context.Context, input internalrequests.DecisionInput) (*models.Request, error) {
		assert.Nil(t, input.Observation)
		return sampleRequest(enums.RequestStatusRejected), nil
	}}

	resp := httptest.NewRecorder()
	Reject(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", "", 20, enums.ActorRoleManager, map[string]string{"requestId": "7"}))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestCancelRejectsBadPathID(t *testing.T) {
	resp := httptest.NewRecorder()
	Cancel(&stubService{}, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", "", 10, enums.ActorRoleRequester, map[string]string{"requestId": "abc"}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeliveryMapsLines(t *testing.T) {
	svc := &stubService{delivery: func(ctx context.Context, input internalrequests.DeliveryInput) (*models.Request, error) {
		assert.Equal(t, []internalrequests.DeliveryLineInput{{LineID: 3, Quantity: 1}}, input.Lines)
		require.NotNil(t, input.DeliveryDate)
		return nil, pkgerrors.New(pkgerrors.CodeOverDelivery, "delivered quantity exceeds requested").
			WithDetails(map[string]any{"line_id": 3, "requested": 1, "delivered": 2})
	}}

	body := `{"lines":[{"line_id":3,"quantity":1}],"delivery_date":"2024-05-02"}`
	resp := httptest.NewRecorder()
	Delivery(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", body, 40, enums.ActorRoleCatalogAdmin, map[string]string{"requestId": "7"}))

	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeOverDelivery), decode(t, resp).Error.Code)
}
