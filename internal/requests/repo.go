package requests

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	"github.com/angelmondragon/brindes-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a requests repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCostCenter(ctx context.Context, id int64) (*models.CostCenter, error) {
	var center models.CostCenter
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&center).Error; err != nil {
		return nil, err
	}
	return &center, nil
}

// CreateRequest inserts the request row and then its lines.
func (r *repository) CreateRequest(ctx context.Context, request *models.Request) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(request).Error; err != nil {
		return err
	}
	if len(request.Lines) == 0 {
		return nil
	}
	for i := range request.Lines {
		request.Lines[i].RequestID = request.ID
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&request.Lines).Error
}

// FindRequest loads the full aggregate: lines with their item, the cost
// center, and approvals newest first.
func (r *repository) FindRequest(ctx context.Context, id int64) (*models.Request, error) {
	var request models.Request
	err := r.preloadAggregate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindStatus(ctx context.Context, id int64) (enums.RequestStatus, error) {
	var request models.Request
	err := r.db.WithContext(ctx).
		Select("id", "status").
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return "", err
	}
	return request.Status, nil
}

// TransitionStatus moves the request to `to` only while its status is one of
// from, and reports whether the row changed.
func (r *repository) TransitionStatus(ctx context.Context, id int64, from []enums.RequestStatus, to enums.RequestStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertApproval(ctx context.Context, approval *models.Approval) error {
	return r.db.WithContext(ctx).Create(approval).Error
}

// AdjustUtilized adds delta to the cost center's utilized amount in place.
func (r *repository) AdjustUtilized(ctx context.Context, costCenterID int64, delta decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.CostCenter{}).
		Where("id = ?", costCenterID).
		Updates(map[string]any{
			"utilized_amount": gorm.Expr("utilized_amount + ?", delta),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdateDeliveredQuantity(ctx context.Context, requestID, lineID int64, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.RequestLine{}).
		Where("id = ? AND request_id = ?", lineID, requestID).
		Update("delivered_quantity", qty).Error
}

func (r *repository) List(ctx context.Context, filters ListFilters, cursor *pagination.Cursor, limit int) ([]models.Request, error) {
	query := r.preloadAggregate(r.db.WithContext(ctx))
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CostCenterID != nil {
		query = query.Where("cost_center_id = ?", *filters.CostCenterID)
	}
	if filters.RequesterID != nil {
		query = query.Where("requester_id = ?", *filters.RequesterID)
	}

	var rows []models.Request
	err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListApprovals(ctx context.Context, requestID int64) ([]models.Approval, error) {
	var approvals []models.Approval
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func (r *repository) preloadAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("CostCenter").
		Preload("Lines", func(tx *gorm.DB) *gorm.DB { return tx.Order("request_lines.id ASC") }).
		Preload("Lines.Item").
		Preload("Approvals", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("approvals.created_at DESC").Order("approvals.id DESC")
		})
}
