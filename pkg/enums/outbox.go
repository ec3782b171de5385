package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateGiftRequest   OutboxAggregateType = "gift_request"
	AggregateInventoryItem OutboxAggregateType = "inventory_item"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateGiftRequest, AggregateInventoryItem:
		return true
	}
	return false
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventRequestSubmitted OutboxEventType = "request_submitted"
	EventRequestApproved  OutboxEventType = "request_approved"
	EventRequestRejected  OutboxEventType = "request_rejected"
	EventRequestCancelled OutboxEventType = "request_cancelled"
	EventRequestDelivered OutboxEventType = "request_delivered"
	EventStockMoved       OutboxEventType = "stock_moved"
)

// eventAggregates fixes which aggregate each event is keyed by.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventRequestSubmitted: AggregateGiftRequest,
	EventRequestApproved:  AggregateGiftRequest,
	EventRequestRejected:  AggregateGiftRequest,
	EventRequestCancelled: AggregateGiftRequest,
	EventRequestDelivered: AggregateGiftRequest,
	EventStockMoved:       AggregateInventoryItem,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e must be emitted against.
func (e OutboxEventType) Aggregate() (OutboxAggregateType, bool) {
	a, ok := eventAggregates[e]
	return a, ok
}

// RequestEventFor maps a request status to the event announcing it.
func RequestEventFor(status RequestStatus) (OutboxEventType, error) {
	switch status {
	case RequestStatusPending:
		return EventRequestSubmitted, nil
	case RequestStatusApproved:
		return EventRequestApproved, nil
	case RequestStatusRejected:
		return EventRequestRejected, nil
	case RequestStatusCancelled:
		return EventRequestCancelled, nil
	case RequestStatusDelivered:
		return EventRequestDelivered, nil
	}
	return "", fmt.Errorf("no lifecycle event for status %q", status)
}
