package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/brindes-backend/pkg/enums"
)

// OutboxEvent is one lifecycle notification written in the same transaction
// as the request or stock change it describes. Rows are never updated except
// for delivery bookkeeping by the publisher.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   int64                     `gorm:"column:aggregate_id;not null;index:idx_outbox_aggregate"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// NextAttempt is the attempt number a publish made now would count as.
func (e OutboxEvent) NextAttempt() int { return e.AttemptCount + 1 }

// OrderingKey keeps all events of one aggregate on a single ordered stream.
func (e OutboxEvent) OrderingKey() string {
	return string(e.AggregateType) + ":" + strconv.FormatInt(e.AggregateID, 10)
}
