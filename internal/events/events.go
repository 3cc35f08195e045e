// Package events defines the checkout events emitted by the API and consumed by
// the metrics worker.
package events

import (
	"context"
	"time"
)

// Event names
const (
	OrderPlaced       = "checkout.order_placed"
	PaymentReconciled = "checkout.payment_reconciled"
)

// CheckoutEvent is the SQS message body shared by the API and the worker.
type CheckoutEvent struct {
	Event         string    `json:"event"`
	SessionID     string    `json:"session_id"`
	OrderID       string    `json:"order_id,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Amount        int64     `json:"amount"`
	State         string    `json:"state,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher sends checkout events. Publishing is best effort for callers:
// a failure is logged and never undoes the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev CheckoutEvent) error
}

// Nop discards every event. Used when no queue is configured.
type Nop struct{}

func (Nop) Publish(context.Context, CheckoutEvent) error { return nil }
