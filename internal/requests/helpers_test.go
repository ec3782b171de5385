package requests

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/internal/inventory"
	"github.com/angelmondragon/brindes-backend/pkg/config"
	"github.com/angelmondragon/brindes-backend/pkg/db"
	"github.com/angelmondragon/brindes-backend/pkg/db/dbtest"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/metrics"
	"github.com/angelmondragon/brindes-backend/pkg/outbox"
)

const (
	requesterID int64 = 10
	managerID   int64 = 20
	directorID  int64 = 30
	catalogID   int64 = 40
)

type harness struct {
	svc    Service
	query  Query
	conn   *gorm.DB
	tx     *flakyTx
	items  inventory.Repository
	repo   Repository
	outbox *outbox.Repository
}

// flakyTx fails the next failNext transactions with a serialization error
// after their body ran, forcing a rollback.
type flakyTx struct {
	inner *db.Client

	mu       sync.Mutex
	failNext int
	calls    int
}

func (f *flakyTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.inner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failNext > 0 {
			f.failNext--
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
		}
		return nil
	})
}

func (f *flakyTx) arm(failures int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = failures
	f.calls = 0
}

func (f *flakyTx) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newHarness(t *testing.T, opts ...func(*ServiceParams)) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)

	repo := NewRepository(conn)
	items := inventory.NewRepository(conn)
	ledger, err := inventory.NewLedger(items)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	tx := &flakyTx{inner: client}

	params := ServiceParams{
		Repo:    repo,
		Tx:      tx,
		Outbox:  outbox.NewService(outboxRepo, nil),
		Catalog: items,
		Stock:   ledger,
		Logger:  logger.Nop(),
		Metrics: metrics.NewLifecycleMetrics(prometheus.NewRegistry()),
		Config:  config.LifecycleConfig{MaxTxAttempts: 3, NumberAttempts: 5},
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	query, err := NewQuery(repo)
	require.NoError(t, err)

	return &harness{svc: svc, query: query, conn: conn, tx: tx, items: items, repo: repo, outbox: outboxRepo}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nullDec(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(v))
}

func (h *harness) center(t *testing.T, c models.CostCenter) models.CostCenter {
	t.Helper()
	return dbtest.CreateCostCenter(t, h.conn, c)
}

func (h *harness) item(t *testing.T, name string, qty int, price string) models.InventoryItem {
	t.Helper()
	item := models.InventoryItem{Name: name, Quantity: qty}
	if price != "" {
		item.UnitPrice = nullDec(price)
	}
	return dbtest.CreateItem(t, h.conn, item)
}

func (h *harness) submit(t *testing.T, centerID int64, lines ...LineInput) *models.Request {
	t.Helper()
	return h.submitAs(t, requesterID, centerID, lines...)
}

func (h *harness) submitAs(t *testing.T, requester, centerID int64, lines ...LineInput) *models.Request {
	t.Helper()
	req, err := h.svc.Submit(context.Background(), SubmitInput{
		RequesterID:     requester,
		CostCenterID:    centerID,
		Justification:   "client visit",
		Purpose:         "relationship",
		DeliveryAddress: "Av. Paulista, 1000",
		Lines:           lines,
	})
	require.NoError(t, err)
	return req
}

func (h *harness) stock(t *testing.T, itemID int64) int {
	t.Helper()
	item, err := h.items.FindItem(context.Background(), itemID)
	require.NoError(t, err)
	return item.Quantity
}

func (h *harness) utilized(t *testing.T, centerID int64) decimal.Decimal {
	t.Helper()
	center, err := h.repo.FindCostCenter(context.Background(), centerID)
	require.NoError(t, err)
	return center.UtilizedAmount
}

func (h *harness) eventTypes(t *testing.T, requestID int64) []enums.OutboxEventType {
	t.Helper()
	events, err := h.outbox.ListForAggregate(context.Background(), requestID)
	require.NoError(t, err)
	types := make([]enums.OutboxEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) map[string]any {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "untyped error: %v", err)
	require.Equal(t, code, typed.Code(), "error: %v", err)
	details, _ := typed.Details().(map[string]any)
	return details
}

func approve(h *harness, id int64, actor int64, role enums.ActorRole) (*models.Request, error) {
	return h.svc.Approve(context.Background(), DecisionInput{RequestID: id, ActorID: actor, ActorRole: role})
}
