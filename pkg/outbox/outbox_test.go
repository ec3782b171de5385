package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/pkg/db/dbtest"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
)

func TestEmitStoresEnvelopeInsideTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventRequestApproved,
			AggregateType: enums.AggregateGiftRequest,
			AggregateID:   42,
			Actor:         &ActorRef{UserID: 7, Role: "director"},
			Data:          RequestTransitionEvent{RequestID: 42, To: enums.RequestStatusApproved},
		})
	}))

	events, err := repo.ListForAggregate(ctx, 42)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventRequestApproved, events[0].EventType)

	env, err := DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, events[0].ID.String(), env.EventID)
	require.NotNil(t, env.Actor)
	assert.EqualValues(t, 7, env.Actor.UserID)

	var data RequestTransitionEvent
	require.NoError(t, env.DecodeData(&data))
	assert.Equal(t, enums.RequestStatusApproved, data.To)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventRequestSubmitted,
			AggregateType: enums.AggregateGiftRequest,
			AggregateID:   1,
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	events, err := repo.ListForAggregate(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEmitRequiresTransactionAndKnownTypes(t *testing.T) {
	svc := NewService(nil, nil)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	_, conn := dbtest.Client(t)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus", AggregateType: enums.AggregateGiftRequest, AggregateID: 1})
	assert.Error(t, err)

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventStockMoved, AggregateType: enums.AggregateGiftRequest, AggregateID: 1})
	assert.ErrorContains(t, err, "belongs to inventory_item")

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventRequestApproved, AggregateType: enums.AggregateGiftRequest})
	assert.Error(t, err)
}

func TestDecodeEnvelopeRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{
		`not-json`,
		`{"version":2,"eventId":"e1","data":{}}`,
		`{"version":0,"eventId":"e1","data":{}}`,
		`{"version":1,"data":{}}`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidEnvelope, raw)
	}

	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e1"}`))
	require.NoError(t, err)
	var data StockMovedEvent
	assert.ErrorIs(t, env.DecodeData(&data), ErrInvalidEnvelope)
}

func TestPublishBookkeeping(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		for i := int64(1); i <= 3; i++ {
			if err := svc.Emit(ctx, tx, DomainEvent{EventType: enums.EventStockMoved, AggregateType: enums.AggregateInventoryItem, AggregateID: i}); err != nil {
				return err
			}
		}
		return nil
	}))

	var batch []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		return repo.MarkFailedTx(tx, batch[1].ID, errors.New("unavailable"))
	}))
	require.Len(t, batch, 3)

	var pending []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 1)
		return err
	}))
	require.Len(t, pending, 1)
	assert.Equal(t, batch[2].ID, pending[0].ID)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkDeadTx(tx, batch[2].ID, errors.New("poison"), 5)
	}))
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}))
	require.Len(t, pending, 1)
	assert.Equal(t, batch[1].ID, pending[0].ID)

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
