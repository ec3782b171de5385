package requests

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/pagination"
)

type query struct {
	repo Repository
}

// NewQuery builds the read side over repo.
func NewQuery(repo Repository) (Query, error) {
	if repo == nil {
		return nil, errors.New("requests repository required")
	}
	return &query{repo: repo}, nil
}

// List returns requests newest first. Actors that cannot see every request
// only ever get their own, whatever requester filter they pass.
func (q *query) List(ctx context.Context, filters ListFilters, actorID int64, role enums.ActorRole) (*RequestList, error) {
	if !role.SeesAllRequests() {
		own := actorID
		filters.RequesterID = &own
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(filters.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := q.repo.List(ctx, filters, cursor, filters.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list requests")
	}

	list := &RequestList{}
	list.Requests, list.NextCursor = pagination.Trim(rows, filters.Limit, func(r models.Request) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return list, nil
}

// GetDetail returns nil, nil when the request does not exist.
func (q *query) GetDetail(ctx context.Context, id, actorID int64, role enums.ActorRole) (*models.Request, error) {
	req, err := q.repo.FindRequest(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load request")
	}
	if !canView(req, actorID, role) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another requester")
	}
	return req, nil
}

func (q *query) ListApprovals(ctx context.Context, requestID, actorID int64, role enums.ActorRole) ([]models.Approval, error) {
	req, err := q.GetDetail(ctx, requestID, actorID, role)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
	}
	approvals, err := q.repo.ListApprovals(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approvals")
	}
	return approvals, nil
}

func canView(req *models.Request, actorID int64, role enums.ActorRole) bool {
	return role.SeesAllRequests() || req.RequesterID == actorID
}
