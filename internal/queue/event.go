// Package queue defines the order events exchanged over RabbitMQ together
// with their publisher and the notification log consumer.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue names.  Routing uses the default exchange, so the routing key is
// the queue name.
const (
	OrderPaidQueue     = "order.paid"
	OrderReleasedQueue = "order.released"
)

// TicketRef is the part of a ticket downstream consumers need to deliver
// it to the customer.
type TicketRef struct {
	Code        string `json:"code"`
	Tier        string `json:"tier"`
	IsExchanged bool   `json:"is_exchanged"`
}

// OrderPaidEvent is published after an order has been confirmed and its
// tickets issued.  It carries enough data for the email collaborator to
// send the tickets without reading the primary database.
type OrderPaidEvent struct {
	EventID          string      `json:"event_id"`
	OrderID          uint64      `json:"order_id"`
	SessionID        uint64      `json:"session_id"`
	PerformanceLabel string      `json:"performance_label"`
	CustomerName     string      `json:"customer_name"`
	CustomerEmail    string      `json:"customer_email"`
	TotalCents       int64       `json:"total_cents"`
	Tickets          []TicketRef `json:"tickets"`
	PaidAt           time.Time   `json:"paid_at"`
}

// OrderReleasedEvent is published when a pending order is cancelled or
// expired and its inventory returned.
type OrderReleasedEvent struct {
	EventID    string         `json:"event_id"`
	OrderID    uint64         `json:"order_id"`
	SessionID  uint64         `json:"session_id"`
	Status     string         `json:"status"` // CANCELLED or EXPIRED
	Quantities map[string]int `json:"quantities"`
	ReleasedAt time.Time      `json:"released_at"`
}

// NewEventID returns a fresh identifier for an event envelope so consumers
// can drop redeliveries.
func NewEventID() string { return uuid.NewString() }
