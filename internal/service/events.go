package service

import (
	"context"

	"github.com/iliyamo/stage-ticketing/internal/queue"
)

// EventPublisher receives order lifecycle events after the owning
// transaction has committed.  Delivery is best effort: a publish error is
// logged and never undoes the state change.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, ev queue.OrderPaidEvent) error
	PublishOrderReleased(ctx context.Context, ev queue.OrderReleasedEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishOrderPaid(context.Context, queue.OrderPaidEvent) error { return nil }

func (NopPublisher) PublishOrderReleased(context.Context, queue.OrderReleasedEvent) error {
	return nil
}

var _ EventPublisher = (*queue.Publisher)(nil)
