package requests

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/internal/inventory"
	"github.com/angelmondragon/brindes-backend/internal/policy"
	"github.com/angelmondragon/brindes-backend/pkg/config"
	"github.com/angelmondragon/brindes-backend/pkg/db"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/metrics"
	"github.com/angelmondragon/brindes-backend/pkg/outbox"
)

const numberConstraint = "requests_number_key"

// errAlreadyClosed aborts a cancel whose request closed after it was loaded.
var errAlreadyClosed = errors.New("request already closed")

const (
	opSubmit   = "submit"
	opApprove  = "approve"
	opReject   = "reject"
	opCancel   = "cancel"
	opDelivery = "delivery"
)

// ServiceParams wires the lifecycle engine.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Catalog ItemCatalog
	Stock   StockLedger
	Logger  *logger.Logger
	Metrics *metrics.LifecycleMetrics
	Config  config.LifecycleConfig
	Now     func() time.Time
	Number  NumberGenerator
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	catalog ItemCatalog
	stock   StockLedger
	logg    *logger.Logger
	metrics *metrics.LifecycleMetrics
	cfg     config.LifecycleConfig
	now     func() time.Time
	number  NumberGenerator
}

// NewService validates dependencies and builds the lifecycle engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("requests repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if params.Catalog == nil {
		return nil, errors.New("item catalog required")
	}
	if params.Stock == nil {
		return nil, errors.New("stock ledger required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Number == nil {
		params.Number = DefaultNumber
	}
	if params.Config.MaxTxAttempts < 1 {
		params.Config.MaxTxAttempts = 3
	}
	if params.Config.NumberAttempts < 1 {
		params.Config.NumberAttempts = 5
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		catalog: params.Catalog,
		stock:   params.Stock,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     params.Config,
		now:     params.Now,
		number:  params.Number,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (_ *models.Request, err error) {
	defer s.observe(opSubmit, time.Now(), &err)

	if err := validateSubmit(input); err != nil {
		return nil, err
	}

	center, err := s.repo.FindCostCenter(ctx, input.CostCenterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidCostCenter, "cost center not found").
				WithDetails(map[string]any{"cost_center_id": input.CostCenterID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cost center")
	}
	if !center.Active {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCostCenter, "cost center is inactive").
			WithDetails(map[string]any{"cost_center_id": center.ID})
	}

	ids := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		ids = append(ids, line.ItemID)
	}
	items, err := s.catalog.FindItems(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load items")
	}
	byID := make(map[int64]models.InventoryItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	total := decimal.Zero
	lines := make([]models.RequestLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		item, ok := byID[line.ItemID]
		if !ok || !item.Active {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidItem, "item not found or inactive").
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		if item.Quantity < line.Quantity {
			return nil, inventory.InsufficientStock(item, line.Quantity)
		}
		rl := models.RequestLine{
			ItemID:    item.ID,
			Quantity:  line.Quantity,
			UnitPrice: item.UnitPrice,
			Note:      line.Note,
		}
		total = total.Add(rl.Subtotal())
		lines = append(lines, rl)
	}

	if available, limited := center.AvailableBudget(); limited && total.GreaterThan(available) {
		return nil, pkgerrors.New(pkgerrors.CodeBudgetExceeded, "request exceeds the cost center budget").
			WithDetails(map[string]any{
				"available": available.StringFixed(2),
				"requested": total.StringFixed(2),
			})
	}

	now := s.now()
	request := &models.Request{
		RequesterID:     input.RequesterID,
		CostCenterID:    center.ID,
		Justification:   strings.TrimSpace(input.Justification),
		Purpose:         strings.TrimSpace(input.Purpose),
		DeliveryAddress: strings.TrimSpace(input.DeliveryAddress),
		RequestedByDate: input.RequestedByDate,
		Total:           total,
		Status:          enums.RequestStatusPending,
		Notes:           input.Notes,
	}

	policyNumber := db.RetryPolicy{
		Attempts:  s.cfg.NumberAttempts,
		Retryable: isNumberCollision,
		OnRetry: func(attempt int, err error) {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "request.number_collision")
		},
	}
	err = db.Retry(ctx, policyNumber, func(attempt int) error {
		request.ID = 0
		request.Number = s.number(now, attempt)
		request.Lines = cloneLines(lines)
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).CreateRequest(ctx, request); err != nil {
				return err
			}
			return s.emit(ctx, tx, request, input.RequesterID, "", outbox.RequestTransitionEvent{
				To:          enums.RequestStatusPending,
				BudgetDelta: decimal.Zero,
			})
		})
	})
	if err != nil {
		if isNumberCollision(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a unique request number")
		}
		return nil, txError(err, "create request")
	}

	s.logg.Info(s.logg.WithGiftRequest(ctx, request.ID, request.Number), "request.submitted")
	return s.load(ctx, request.ID)
}

func (s *service) Approve(ctx context.Context, input DecisionInput) (_ *models.Request, err error) {
	defer s.observe(opApprove, time.Now(), &err)

	req, err := s.load(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.RequestStatusPending {
		return nil, invalidState(req, opApprove)
	}
	// tier first: stock levels are not disclosed to actors who cannot approve
	var thresholds policy.Thresholds
	if req.CostCenter != nil {
		thresholds = policy.ThresholdsFor(*req.CostCenter)
	}
	tier, err := policy.Decide(req.Total, thresholds, input.ActorRole)
	if err != nil {
		return nil, err
	}
	for _, line := range req.Lines {
		if line.Item != nil && line.Item.Quantity < line.Quantity {
			return nil, inventory.InsufficientStock(*line.Item, line.Quantity)
		}
	}

	lines := linesByItem(req.Lines)
	stockDelta := make(map[int64]int, len(lines))
	for _, line := range lines {
		stockDelta[line.ItemID] -= line.Quantity
	}

	err = db.RetryOnConflict(ctx, s.cfg.MaxTxAttempts, s.onRetry(ctx, opApprove, req), func(int) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			approval := &models.Approval{
				RequestID:   req.ID,
				ApproverID:  input.ActorID,
				Decision:    enums.ApprovalDecisionApproved,
				Observation: input.Observation,
				Tier:        tier,
			}
			if err := repo.InsertApproval(ctx, approval); err != nil {
				return err
			}
			changed, err := repo.TransitionStatus(ctx, req.ID, []enums.RequestStatus{enums.RequestStatusPending}, enums.RequestStatusApproved, nil)
			if err != nil {
				return err
			}
			if !changed {
				return invalidState(req, opApprove)
			}
			if err := repo.AdjustUtilized(ctx, req.CostCenterID, req.Total); err != nil {
				return err
			}
			for _, line := range lines {
				if err := s.stock.Reserve(ctx, tx, line.ItemID, line.Quantity); err != nil {
					return err
				}
			}
			return s.emit(ctx, tx, req, input.ActorID, input.ActorRole, outbox.RequestTransitionEvent{
				From:        enums.RequestStatusPending,
				To:          enums.RequestStatusApproved,
				Tier:        tier,
				BudgetDelta: req.Total,
				StockDelta:  stockDelta,
			})
		})
	})
	if err != nil {
		return nil, txError(err, "approve request")
	}

	logCtx := s.logg.WithGiftRequest(ctx, req.ID, req.Number)
	logCtx = s.logg.WithFields(logCtx, map[string]any{"approver_id": input.ActorID, "tier": tier})
	s.logg.Info(logCtx, "request.approved")
	return s.load(ctx, req.ID)
}

func (s *service) Reject(ctx context.Context, input DecisionInput) (_ *models.Request, err error) {
	defer s.observe(opReject, time.Now(), &err)

	req, err := s.load(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.RequestStatusPending {
		return nil, invalidState(req, opReject)
	}
	tier, err := policy.DecideRejection(input.ActorRole)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		approval := &models.Approval{
			RequestID:   req.ID,
			ApproverID:  input.ActorID,
			Decision:    enums.ApprovalDecisionRejected,
			Observation: input.Observation,
			Tier:        tier,
		}
		if err := repo.InsertApproval(ctx, approval); err != nil {
			return err
		}
		changed, err := repo.TransitionStatus(ctx, req.ID, []enums.RequestStatus{enums.RequestStatusPending}, enums.RequestStatusRejected, nil)
		if err != nil {
			return err
		}
		if !changed {
			return invalidState(req, opReject)
		}
		return s.emit(ctx, tx, req, input.ActorID, input.ActorRole, outbox.RequestTransitionEvent{
			From:        enums.RequestStatusPending,
			To:          enums.RequestStatusRejected,
			Tier:        tier,
			BudgetDelta: decimal.Zero,
		})
	})
	if err != nil {
		return nil, txError(err, "reject request")
	}

	s.logg.Info(s.logg.WithGiftRequest(ctx, req.ID, req.Number), "request.rejected")
	return s.load(ctx, req.ID)
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (_ *models.Request, err error) {
	defer s.observe(opCancel, time.Now(), &err)

	req, err := s.load(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != input.ActorID && !input.ActorRole.CanApprove() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester or an approver may cancel this request")
	}
	switch req.Status {
	case enums.RequestStatusDelivered:
		return nil, invalidState(req, opCancel)
	case enums.RequestStatusCancelled, enums.RequestStatusRejected:
		return req, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindStatus(ctx, req.ID)
		if err != nil {
			return err
		}
		if current == enums.RequestStatusCancelled || current == enums.RequestStatusRejected {
			return errAlreadyClosed
		}
		if current != enums.RequestStatusPending && current != enums.RequestStatusApproved {
			return invalidState(&models.Request{ID: req.ID, Status: current}, opCancel)
		}
		changed, err := repo.TransitionStatus(ctx, req.ID, []enums.RequestStatus{current}, enums.RequestStatusCancelled, nil)
		if err != nil {
			return err
		}
		if !changed {
			return invalidState(req, opCancel)
		}

		event := outbox.RequestTransitionEvent{
			From:        current,
			To:          enums.RequestStatusCancelled,
			BudgetDelta: decimal.Zero,
		}
		if current == enums.RequestStatusApproved {
			if err := repo.AdjustUtilized(ctx, req.CostCenterID, req.Total.Neg()); err != nil {
				return err
			}
			event.BudgetDelta = req.Total.Neg()
			if s.cfg.RestoreStockOnCancel {
				event.StockDelta = make(map[int64]int, len(req.Lines))
				for _, line := range linesByItem(req.Lines) {
					if err := s.stock.Restore(ctx, tx, line.ItemID, line.Quantity); err != nil {
						return err
					}
					event.StockDelta[line.ItemID] += line.Quantity
				}
			}
		}
		return s.emit(ctx, tx, req, input.ActorID, input.ActorRole, event)
	})
	if errors.Is(err, errAlreadyClosed) {
		return s.load(ctx, req.ID)
	}
	if err != nil {
		return nil, txError(err, "cancel request")
	}

	s.logg.Info(s.logg.WithGiftRequest(ctx, req.ID, req.Number), "request.cancelled")
	return s.load(ctx, req.ID)
}

func (s *service) RegisterDelivery(ctx context.Context, input DeliveryInput) (_ *models.Request, err error) {
	defer s.observe(opDelivery, time.Now(), &err)

	if !input.ActorRole.CanDeliver() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only catalog administrators or directors may register deliveries")
	}
	req, err := s.load(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != enums.RequestStatusApproved && req.Status != enums.RequestStatusDelivered {
		return nil, invalidState(req, opDelivery)
	}

	delivered, err := resolveDelivered(req.Lines, input.Lines)
	if err != nil {
		return nil, err
	}

	deliveryDate := s.now().UTC()
	if input.DeliveryDate != nil {
		deliveryDate = *input.DeliveryDate
	}
	updates := map[string]any{"delivery_date": deliveryDate}
	if input.Note != nil {
		updates["notes"] = *input.Note
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, line := range req.Lines {
			if err := repo.UpdateDeliveredQuantity(ctx, req.ID, line.ID, delivered[line.ID]); err != nil {
				return err
			}
		}
		changed, err := repo.TransitionStatus(ctx, req.ID,
			[]enums.RequestStatus{enums.RequestStatusApproved, enums.RequestStatusDelivered},
			enums.RequestStatusDelivered, updates)
		if err != nil {
			return err
		}
		if !changed {
			return invalidState(req, opDelivery)
		}
		return s.emit(ctx, tx, req, input.ActorID, input.ActorRole, outbox.RequestTransitionEvent{
			From:        req.Status,
			To:          enums.RequestStatusDelivered,
			BudgetDelta: decimal.Zero,
		})
	})
	if err != nil {
		return nil, txError(err, "register delivery")
	}

	s.logg.Info(s.logg.WithGiftRequest(ctx, req.ID, req.Number), "request.delivered")
	return s.load(ctx, req.ID)
}

func (s *service) load(ctx context.Context, id int64) (*models.Request, error) {
	req, err := s.repo.FindRequest(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "request not found").
				WithDetails(map[string]any{"request_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request")
	}
	return req, nil
}

// emit queues the lifecycle event matching data.To.
func (s *service) emit(ctx context.Context, tx *gorm.DB, req *models.Request, actorID int64, role enums.ActorRole, data outbox.RequestTransitionEvent) error {
	eventType, err := enums.RequestEventFor(data.To)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	data.RequestID = req.ID
	data.Number = req.Number
	data.CostCenterID = req.CostCenterID
	data.RequesterID = req.RequesterID
	data.Total = req.Total
	data.At = now
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGiftRequest,
		AggregateID:   req.ID,
		Actor:         &outbox.ActorRef{UserID: actorID, Role: role.String()},
		Data:          data,
		OccurredAt:    now,
	})
}

func (s *service) onRetry(ctx context.Context, op string, req *models.Request) func(int, error) {
	return func(attempt int, err error) {
		s.metrics.IncRetry(op)
		logCtx := s.logg.WithGiftRequest(ctx, req.ID, req.Number)
		logCtx = s.logg.WithFields(logCtx, map[string]any{"attempt": attempt, "operation": op, "cause": err.Error()})
		s.logg.Warn(logCtx, "request.tx_retry")
	}
}

func (s *service) observe(op string, started time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = string(pkgerrors.CodeOf(*errp))
	}
	s.metrics.Observe(op, outcome, time.Since(started))
}

func validateSubmit(input SubmitInput) error {
	if input.RequesterID <= 0 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "requester identity missing")
	}
	if input.CostCenterID <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidCostCenter, "cost center required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[int64]struct{}, len(input.Lines))
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
				WithDetails(map[string]any{"item_id": line.ItemID, "quantity": line.Quantity})
		}
		if _, dup := seen[line.ItemID]; dup {
			return pkgerrors.New(pkgerrors.CodeInvalidItem, "item listed more than once").
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		seen[line.ItemID] = struct{}{}
	}
	return nil
}

// resolveDelivered maps every line id to its delivered quantity. Lines the
// caller leaves out are delivered in full.
func resolveDelivered(lines []models.RequestLine, input []DeliveryLineInput) (map[int64]int, error) {
	byID := make(map[int64]models.RequestLine, len(lines))
	for _, line := range lines {
		byID[line.ID] = line
	}
	explicit := make(map[int64]int, len(input))
	for _, in := range input {
		line, ok := byID[in.LineID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line does not belong to request").
				WithDetails(map[string]any{"line_id": in.LineID})
		}
		if _, dup := explicit[in.LineID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line listed more than once").
				WithDetails(map[string]any{"line_id": in.LineID})
		}
		if in.Quantity < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivered quantity cannot be negative").
				WithDetails(map[string]any{"line_id": in.LineID})
		}
		if in.Quantity > line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeOverDelivery, "delivered quantity exceeds requested quantity").
				WithDetails(map[string]any{
					"line_id":   line.ID,
					"requested": line.Quantity,
					"delivered": in.Quantity,
				})
		}
		explicit[in.LineID] = in.Quantity
	}

	delivered := make(map[int64]int, len(lines))
	for _, line := range lines {
		if qty, ok := explicit[line.ID]; ok {
			delivered[line.ID] = qty
			continue
		}
		delivered[line.ID] = line.Quantity
	}
	return delivered, nil
}

// linesByItem orders lines by item id so concurrent transactions lock items
// in the same order.
func linesByItem(lines []models.RequestLine) []models.RequestLine {
	sorted := make([]models.RequestLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })
	return sorted
}

func cloneLines(lines []models.RequestLine) []models.RequestLine {
	out := make([]models.RequestLine, len(lines))
	copy(out, lines)
	return out
}

func invalidState(req *models.Request, op string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "operation not allowed in current status").
		WithDetails(map[string]any{"status": req.Status, "operation": op})
}

func isNumberCollision(err error) bool {
	if db.IsUniqueViolation(err, numberConstraint) {
		return true
	}
	return db.IsUniqueViolation(err, "") && strings.Contains(err.Error(), "requests.number")
}

// txError keeps typed errors and classifies store failures.
func txError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
