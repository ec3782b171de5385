package requests

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/internal/policy"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
)

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewQuery(nil)
	require.Error(t, err)
}

func TestSubmitCreatesPendingRequestWithPriceSnapshot(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{BudgetCeiling: nullDec("5000")})
	mug := h.item(t, "Caneca", 10, "25.50")
	pen := h.item(t, "Caneta", 4, "")

	req := h.submit(t, center.ID, LineInput{ItemID: mug.ID, Quantity: 4}, LineInput{ItemID: pen.ID, Quantity: 2})

	assert.Regexp(t, regexp.MustCompile(`^SOL-\d{4}-\d{6}$`), req.Number)
	assert.Equal(t, enums.RequestStatusPending, req.Status)
	assert.True(t, req.Total.Equal(dec("102")), "total %s", req.Total)
	require.Len(t, req.Lines, 2)
	assert.True(t, req.Lines[0].UnitPrice.Decimal.Equal(dec("25.50")))
	assert.False(t, req.Lines[1].UnitPrice.Valid)
	require.NotNil(t, req.CostCenter)
	assert.Empty(t, req.Approvals)

	// submission never reserves stock or budget
	assert.Equal(t, 10, h.stock(t, mug.ID))
	assert.Equal(t, 4, h.stock(t, pen.ID))
	assert.True(t, h.utilized(t, center.ID).IsZero())
	assert.Equal(t, []enums.OutboxEventType{enums.EventRequestSubmitted}, h.eventTypes(t, req.ID))

	// catalog price changes do not touch the stored total
	require.NoError(t, h.conn.Model(&models.InventoryItem{}).Where("id = ?", mug.ID).Update("unit_price", "99").Error)
	reloaded, err := h.query.GetDetail(context.Background(), req.ID, requesterID, enums.ActorRoleRequester)
	require.NoError(t, err)
	assert.True(t, reloaded.Total.Equal(dec("102")))
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{BudgetCeiling: nullDec("100"), UtilizedAmount: dec("40")})
	closed := h.center(t, models.CostCenter{})
	require.NoError(t, h.conn.Model(&models.CostCenter{}).Where("id = ?", closed.ID).Update("active", false).Error)
	item := h.item(t, "Camiseta", 3, "20")
	retired := h.item(t, "Bone", 3, "5")
	require.NoError(t, h.conn.Model(&models.InventoryItem{}).Where("id = ?", retired.ID).Update("active", false).Error)

	cases := []struct {
		name   string
		center int64
		lines  []LineInput
		code   pkgerrors.Code
	}{
		{"no lines", center.ID, nil, pkgerrors.CodeValidation},
		{"zero quantity", center.ID, []LineInput{{ItemID: item.ID}}, pkgerrors.CodeValidation},
		{"duplicate item", center.ID, []LineInput{{ItemID: item.ID, Quantity: 1}, {ItemID: item.ID, Quantity: 1}}, pkgerrors.CodeInvalidItem},
		{"unknown cost center", center.ID + 99, []LineInput{{ItemID: item.ID, Quantity: 1}}, pkgerrors.CodeInvalidCostCenter},
		{"inactive cost center", closed.ID, []LineInput{{ItemID: item.ID, Quantity: 1}}, pkgerrors.CodeInvalidCostCenter},
		{"unknown item", center.ID, []LineInput{{ItemID: item.ID + 99, Quantity: 1}}, pkgerrors.CodeInvalidItem},
		{"inactive item", center.ID, []LineInput{{ItemID: retired.ID, Quantity: 1}}, pkgerrors.CodeInvalidItem},
		{"insufficient stock", center.ID, []LineInput{{ItemID: item.ID, Quantity: 4}}, pkgerrors.CodeInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Submit(context.Background(), SubmitInput{
				RequesterID:  requesterID,
				CostCenterID: tc.center,
				Lines:        tc.lines,
			})
			requireCode(t, err, tc.code)
		})
	}

	var count int64
	require.NoError(t, h.conn.Model(&models.Request{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubmitRejectsTotalAboveAvailableBudget(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{BudgetCeiling: nullDec("100"), UtilizedAmount: dec("40")})
	item := h.item(t, "Camiseta", 5, "20")

	_, err := h.svc.Submit(context.Background(), SubmitInput{
		RequesterID:  requesterID,
		CostCenterID: center.ID,
		Lines:        []LineInput{{ItemID: item.ID, Quantity: 4}},
	})
	details := requireCode(t, err, pkgerrors.CodeBudgetExceeded)
	assert.Equal(t, "60.00", details["available"])
	assert.Equal(t, "80.00", details["requested"])

	// exactly the available amount is accepted
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 3})
	assert.True(t, req.Total.Equal(dec("60")))
}

func TestSubmitWithoutBudgetCeilingIsUnlimited(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Notebook", 2, "9000")

	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})
	assert.True(t, req.Total.Equal(dec("18000")))
}

func TestSubmitRegeneratesNumberOnCollision(t *testing.T) {
	var attempts []int
	h := newHarness(t, func(p *ServiceParams) {
		p.Number = func(now time.Time, attempt int) string {
			attempts = append(attempts, attempt)
			if attempt < 3 {
				return "SOL-2026-000001"
			}
			return fmt.Sprintf("SOL-2026-00000%d", attempt)
		}
	})
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Agenda", 10, "10")

	first := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})
	assert.Equal(t, "SOL-2026-000001", first.Number)

	attempts = nil
	second := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})
	assert.Equal(t, "SOL-2026-000003", second.Number)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	require.Len(t, second.Lines, 1)
}

func TestSubmitFailsWhenNumbersKeepColliding(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Number = func(time.Time, int) string { return "SOL-2026-000001" }
		p.Config.NumberAttempts = 2
	})
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Agenda", 10, "10")
	h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})

	_, err := h.svc.Submit(context.Background(), SubmitInput{
		RequesterID:  requesterID,
		CostCenterID: center.ID,
		Lines:        []LineInput{{ItemID: item.ID, Quantity: 1}},
	})
	requireCode(t, err, pkgerrors.CodeConflict)
}

// A manager cannot approve above the manager ceiling; a director can.
func TestApproveEscalatesAboveManagerCeiling(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{ManagerCeiling: nullDec("1000"), EventCeiling: nullDec("1500")})
	kit := h.item(t, "Kit executivo", 10, "400")
	req := h.submit(t, center.ID, LineInput{ItemID: kit.ID, Quantity: 3})
	require.True(t, req.Total.Equal(dec("1200")))

	_, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	details := requireCode(t, err, pkgerrors.CodeInsufficientTier)
	assert.Equal(t, policy.RequiredDirector, details["required_tier"])
	assert.Equal(t, 10, h.stock(t, kit.ID))

	approved, err := approve(h, req.ID, directorID, enums.ActorRoleDirector)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusApproved, approved.Status)
	require.Len(t, approved.Approvals, 1)
	assert.Equal(t, enums.ApprovalTierDirector, approved.Approvals[0].Tier)
	assert.Equal(t, enums.ApprovalDecisionApproved, approved.Approvals[0].Decision)
	assert.Equal(t, directorID, approved.Approvals[0].ApproverID)

	assert.Equal(t, 7, h.stock(t, kit.ID))
	assert.True(t, h.utilized(t, center.ID).Equal(dec("1200")))
	assert.True(t, approved.Total.Equal(dec("1200")))
	assert.Equal(t, []enums.OutboxEventType{enums.EventRequestSubmitted, enums.EventRequestApproved}, h.eventTypes(t, req.ID))
}

func TestApproveAtCeilingStaysWithManager(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{ManagerCeiling: nullDec("1000")})
	kit := h.item(t, "Kit", 10, "500")
	req := h.submit(t, center.ID, LineInput{ItemID: kit.ID, Quantity: 2})

	_, err := approve(h, req.ID, requesterID, enums.ActorRoleRequester)
	details := requireCode(t, err, pkgerrors.CodeInsufficientTier)
	assert.Equal(t, policy.RequiredManagerOrDirector, details["required_tier"])

	approved, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)
	require.Len(t, approved.Approvals, 1)
	assert.Equal(t, enums.ApprovalTierManager, approved.Approvals[0].Tier)
}

func TestApproveInsufficientStockLeavesEverythingUntouched(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	a := h.item(t, "Item A", 10, "10")
	b := h.item(t, "Item B", 5, "10")
	req := h.submit(t, center.ID, LineInput{ItemID: a.ID, Quantity: 5}, LineInput{ItemID: b.ID, Quantity: 3})

	// stock drains after submission
	require.NoError(t, h.conn.Model(&models.InventoryItem{}).Where("id = ?", b.ID).Update("quantity", 2).Error)

	_, err := approve(h, req.ID, directorID, enums.ActorRoleDirector)
	details := requireCode(t, err, pkgerrors.CodeInsufficientStock)
	assert.Equal(t, b.ID, details["item_id"])
	assert.Equal(t, "Item B", details["item_name"])
	assert.Equal(t, 2, details["available"])
	assert.Equal(t, 3, details["requested"])

	assert.Equal(t, 10, h.stock(t, a.ID))
	assert.Equal(t, 2, h.stock(t, b.ID))
	assert.True(t, h.utilized(t, center.ID).IsZero())

	detail, err := h.query.GetDetail(context.Background(), req.ID, directorID, enums.ActorRoleDirector)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusPending, detail.Status)
	assert.Empty(t, detail.Approvals)
}

func TestApproveChecksTierBeforeStock(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{ManagerCeiling: nullDec("100")})
	kit := h.item(t, "Kit viagem", 10, "60")
	req := h.submit(t, center.ID, LineInput{ItemID: kit.ID, Quantity: 2})
	require.NoError(t, h.conn.Model(&models.InventoryItem{}).Where("id = ?", kit.ID).Update("quantity", 0).Error)

	_, err := approve(h, req.ID, requesterID, enums.ActorRoleRequester)
	details := requireCode(t, err, pkgerrors.CodeInsufficientTier)
	assert.Equal(t, policy.RequiredDirector, details["required_tier"])
	assert.NotContains(t, details, "available")

	_, err = approve(h, req.ID, managerID, enums.ActorRoleManager)
	details = requireCode(t, err, pkgerrors.CodeInsufficientTier)
	assert.Equal(t, policy.RequiredDirector, details["required_tier"])

	_, err = approve(h, req.ID, directorID, enums.ActorRoleDirector)
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
}

type drainedLedger struct {
	StockLedger
	drained *int64
}

func (l drainedLedger) Reserve(ctx context.Context, tx *gorm.DB, itemID int64, qty int) error {
	if itemID == *l.drained {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "drained concurrently")
	}
	return l.StockLedger.Reserve(ctx, tx, itemID, qty)
}

func TestApproveRollsBackWhenReservationFailsInsideTransaction(t *testing.T) {
	var drained int64
	h := newHarness(t, func(p *ServiceParams) {
		p.Stock = drainedLedger{StockLedger: p.Stock, drained: &drained}
	})
	center := h.center(t, models.CostCenter{})
	a := h.item(t, "Item A", 10, "10")
	b := h.item(t, "Item B", 10, "10")
	req := h.submit(t, center.ID, LineInput{ItemID: b.ID, Quantity: 3}, LineInput{ItemID: a.ID, Quantity: 5})
	drained = b.ID

	_, err := approve(h, req.ID, directorID, enums.ActorRoleDirector)
	requireCode(t, err, pkgerrors.CodeInsufficientStock)

	// item A is reserved first and must come back with the rollback
	assert.Equal(t, 10, h.stock(t, a.ID))
	assert.Equal(t, 10, h.stock(t, b.ID))
	assert.True(t, h.utilized(t, center.ID).IsZero())
	status, err := h.repo.FindStatus(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusPending, status)
	approvals, err := h.repo.ListApprovals(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Empty(t, approvals)
	assert.Equal(t, []enums.OutboxEventType{enums.EventRequestSubmitted}, h.eventTypes(t, req.ID))
}

func TestApproveRetriesConflictingTransaction(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Garrafa", 10, "30")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})

	h.tx.arm(2)
	approved, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)
	assert.Equal(t, 3, h.tx.attempts())
	assert.Equal(t, enums.RequestStatusApproved, approved.Status)
	require.Len(t, approved.Approvals, 1)
	assert.Equal(t, 8, h.stock(t, item.ID))
	assert.True(t, h.utilized(t, center.ID).Equal(dec("60")))
}

func TestApproveSurfacesConflictAfterLastAttempt(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Garrafa", 10, "30")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})

	h.tx.arm(3)
	_, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	requireCode(t, err, pkgerrors.CodeTxConflict)
	assert.Equal(t, 3, h.tx.attempts())
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeTxConflict).Retryable)

	assert.Equal(t, 10, h.stock(t, item.ID))
	assert.True(t, h.utilized(t, center.ID).IsZero())
}

func TestApproveRequiresPendingRequest(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Garrafa", 10, "30")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})

	_, err := approve(h, req.ID+100, managerID, enums.ActorRoleManager)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)

	_, err = approve(h, req.ID, directorID, enums.ActorRoleDirector)
	details := requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, enums.RequestStatusApproved, details["status"])
	assert.Equal(t, 8, h.stock(t, item.ID))
}

func TestConcurrentApprovalsOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Squeeze", 10, "15")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 4})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = approve(h, req.ID, directorID+int64(i), enums.ActorRoleDirector)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireCode(t, err, pkgerrors.CodeStateConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 6, h.stock(t, item.ID))
	assert.True(t, h.utilized(t, center.ID).Equal(dec("60")))
	approvals, err := h.repo.ListApprovals(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Len(t, approvals, 1)
}

func TestRejectRecordsDecisionWithoutReservations(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{ManagerCeiling: nullDec("10")})
	item := h.item(t, "Caderno", 5, "50")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})

	_, err := h.svc.Reject(context.Background(), DecisionInput{RequestID: req.ID, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	requireCode(t, err, pkgerrors.CodeInsufficientTier)

	note := "fora da politica"
	// rejection is not gated by the ceilings
	rejected, err := h.svc.Reject(context.Background(), DecisionInput{RequestID: req.ID, ActorID: managerID, ActorRole: enums.ActorRoleManager, Observation: &note})
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusRejected, rejected.Status)
	require.Len(t, rejected.Approvals, 1)
	assert.Equal(t, enums.ApprovalDecisionRejected, rejected.Approvals[0].Decision)
	assert.Equal(t, enums.ApprovalTierManager, rejected.Approvals[0].Tier)
	require.NotNil(t, rejected.Approvals[0].Observation)
	assert.Equal(t, note, *rejected.Approvals[0].Observation)
	assert.Equal(t, 5, h.stock(t, item.ID))
	assert.True(t, h.utilized(t, center.ID).IsZero())

	_, err = h.svc.Reject(context.Background(), DecisionInput{RequestID: req.ID, ActorID: directorID, ActorRole: enums.ActorRoleDirector})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	_, err = approve(h, req.ID, directorID, enums.ActorRoleDirector)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelApprovedReversesBudgetButNotStock(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{UtilizedAmount: dec("100")})
	item := h.item(t, "Mochila", 10, "80")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})
	_, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)
	require.True(t, h.utilized(t, center.ID).Equal(dec("260")))

	cancelled, err := h.svc.Cancel(context.Background(), CancelInput{RequestID: req.ID, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusCancelled, cancelled.Status)
	assert.True(t, h.utilized(t, center.ID).Equal(dec("100")))
	assert.Equal(t, 8, h.stock(t, item.ID))
	assert.True(t, cancelled.Total.Equal(dec("160")))
}

func TestCancelRestoresStockWhenEnabled(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.Config.RestoreStockOnCancel = true })
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Mochila", 10, "80")
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})
	_, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)
	require.Equal(t, 8, h.stock(t, item.ID))

	_, err = h.svc.Cancel(context.Background(), CancelInput{RequestID: req.ID, ActorID: managerID, ActorRole: enums.ActorRoleManager})
	require.NoError(t, err)
	assert.Equal(t, 10, h.stock(t, item.ID))
	assert.True(t, h.utilized(t, center.ID).IsZero())
}

func TestCancelRules(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Caneta", 50, "2")
	ctx := context.Background()

	pending := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})
	_, err := h.svc.Cancel(ctx, CancelInput{RequestID: pending.ID, ActorID: requesterID + 1, ActorRole: enums.ActorRoleRequester})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = h.svc.Cancel(ctx, CancelInput{RequestID: pending.ID, ActorID: catalogID, ActorRole: enums.ActorRoleCatalogAdmin})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = h.svc.Cancel(ctx, CancelInput{RequestID: pending.ID + 100, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	requireCode(t, err, pkgerrors.CodeNotFound)

	cancelled, err := h.svc.Cancel(ctx, CancelInput{RequestID: pending.ID, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusCancelled, cancelled.Status)
	assert.True(t, h.utilized(t, center.ID).IsZero())

	again, err := h.svc.Cancel(ctx, CancelInput{RequestID: pending.ID, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusCancelled, again.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.EventRequestSubmitted, enums.EventRequestCancelled}, h.eventTypes(t, pending.ID))

	rejected := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})
	_, err = h.svc.Reject(ctx, DecisionInput{RequestID: rejected.ID, ActorID: managerID, ActorRole: enums.ActorRoleManager})
	require.NoError(t, err)
	noop, err := h.svc.Cancel(ctx, CancelInput{RequestID: rejected.ID, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusRejected, noop.Status)

	delivered := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 1})
	_, err = approve(h, delivered.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)
	_, err = h.svc.RegisterDelivery(ctx, DeliveryInput{RequestID: delivered.ID, ActorID: catalogID, ActorRole: enums.ActorRoleCatalogAdmin})
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, CancelInput{RequestID: delivered.ID, ActorID: requesterID, ActorRole: enums.ActorRoleRequester})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestRegisterDeliveryRejectsOverDelivery(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	a := h.item(t, "Item A", 10, "10")
	b := h.item(t, "Item B", 10, "10")
	req := h.submit(t, center.ID, LineInput{ItemID: a.ID, Quantity: 5}, LineInput{ItemID: b.ID, Quantity: 2})
	_, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)

	_, err = h.svc.RegisterDelivery(context.Background(), DeliveryInput{
		RequestID: req.ID,
		ActorID:   catalogID,
		ActorRole: enums.ActorRoleCatalogAdmin,
		Lines: []DeliveryLineInput{
			{LineID: req.Lines[1].ID, Quantity: 1},
			{LineID: req.Lines[0].ID, Quantity: 7},
		},
	})
	details := requireCode(t, err, pkgerrors.CodeOverDelivery)
	assert.Equal(t, req.Lines[0].ID, details["line_id"])
	assert.Equal(t, 5, details["requested"])
	assert.Equal(t, 7, details["delivered"])

	detail, err := h.query.GetDetail(context.Background(), req.ID, catalogID, enums.ActorRoleCatalogAdmin)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusApproved, detail.Status)
	for _, line := range detail.Lines {
		assert.Nil(t, line.DeliveredQuantity)
	}
}

func TestRegisterDeliveryDefaultsAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	a := h.item(t, "Item A", 10, "10")
	b := h.item(t, "Item B", 10, "10")
	req := h.submit(t, center.ID, LineInput{ItemID: a.ID, Quantity: 5}, LineInput{ItemID: b.ID, Quantity: 2})
	_, err := approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)
	utilized := h.utilized(t, center.ID)

	when := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	note := "entregue na recepcao"
	input := DeliveryInput{
		RequestID:    req.ID,
		ActorID:      directorID,
		ActorRole:    enums.ActorRoleDirector,
		Lines:        []DeliveryLineInput{{LineID: req.Lines[0].ID, Quantity: 3}},
		DeliveryDate: &when,
		Note:         &note,
	}

	first, err := h.svc.RegisterDelivery(context.Background(), input)
	require.NoError(t, err)
	second, err := h.svc.RegisterDelivery(context.Background(), input)
	require.NoError(t, err)

	for _, got := range []*models.Request{first, second} {
		assert.Equal(t, enums.RequestStatusDelivered, got.Status)
		require.Len(t, got.Lines, 2)
		require.NotNil(t, got.Lines[0].DeliveredQuantity)
		require.NotNil(t, got.Lines[1].DeliveredQuantity)
		assert.Equal(t, 3, *got.Lines[0].DeliveredQuantity)
		assert.Equal(t, 2, *got.Lines[1].DeliveredQuantity)
		require.NotNil(t, got.DeliveryDate)
		assert.True(t, when.Equal(*got.DeliveryDate))
		require.NotNil(t, got.Notes)
		assert.Equal(t, note, *got.Notes)
	}

	// delivery never touches stock or budget
	assert.Equal(t, 5, h.stock(t, a.ID))
	assert.Equal(t, 8, h.stock(t, b.ID))
	assert.True(t, h.utilized(t, center.ID).Equal(utilized))
}

func TestRegisterDeliveryRules(t *testing.T) {
	h := newHarness(t)
	center := h.center(t, models.CostCenter{})
	item := h.item(t, "Item", 10, "10")
	ctx := context.Background()
	req := h.submit(t, center.ID, LineInput{ItemID: item.ID, Quantity: 2})

	_, err := h.svc.RegisterDelivery(ctx, DeliveryInput{RequestID: req.ID, ActorID: managerID, ActorRole: enums.ActorRoleManager})
	requireCode(t, err, pkgerrors.CodeForbidden)
	_, err = h.svc.RegisterDelivery(ctx, DeliveryInput{RequestID: req.ID, ActorID: catalogID, ActorRole: enums.ActorRoleCatalogAdmin})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = approve(h, req.ID, managerID, enums.ActorRoleManager)
	require.NoError(t, err)

	_, err = h.svc.RegisterDelivery(ctx, DeliveryInput{
		RequestID: req.ID, ActorID: catalogID, ActorRole: enums.ActorRoleCatalogAdmin,
		Lines: []DeliveryLineInput{{LineID: req.Lines[0].ID + 100, Quantity: 1}},
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = h.svc.RegisterDelivery(ctx, DeliveryInput{
		RequestID: req.ID, ActorID: catalogID, ActorRole: enums.ActorRoleCatalogAdmin,
		Lines: []DeliveryLineInput{{LineID: req.Lines[0].ID, Quantity: -1}},
	})
	requireCode(t, err, pkgerrors.CodeValidation)

	delivered, err := h.svc.RegisterDelivery(ctx, DeliveryInput{
		RequestID: req.ID, ActorID: catalogID, ActorRole: enums.ActorRoleCatalogAdmin,
		Lines: []DeliveryLineInput{{LineID: req.Lines[0].ID, Quantity: 0}},
	})
	require.NoError(t, err)
	require.NotNil(t, delivered.Lines[0].DeliveredQuantity)
	assert.Zero(t, *delivered.Lines[0].DeliveredQuantity)
	assert.NotNil(t, delivered.DeliveryDate)
	assert.Nil(t, delivered.Notes)
}

func TestResolveDeliveredDefaultsMissingLines(t *testing.T) {
	lines := []models.RequestLine{{ID: 1, Quantity: 5}, {ID: 2, Quantity: 3}}

	got, err := resolveDelivered(lines, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 5, 2: 3}, got)

	got, err = resolveDelivered(lines, []DeliveryLineInput{{LineID: 2, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 5, 2: 1}, got)

	_, err = resolveDelivered(lines, []DeliveryLineInput{{LineID: 2, Quantity: 1}, {LineID: 2, Quantity: 2}})
	requireCode(t, err, pkgerrors.CodeValidation)
}
