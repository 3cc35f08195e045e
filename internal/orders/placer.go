// Package orders turns a reviewed checkout draft into a backend order and,
// for gateway payments, a payment link.
package orders

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/checkout"
	"github.com/Sung-star/storefront-checkout/internal/events"
	"github.com/Sung-star/storefront-checkout/internal/logger"
)

// User facing fallbacks when the backend gives no message.
const (
	msgCreateFailed = "Order placement failed. Please try again!"
	msgLinkFailed   = "Could not create the VNPAY payment link"
)

// Backend is the subset of the backend client used to place orders.
type Backend interface {
	CreateOrder(ctx context.Context, in backend.CreateOrderRequest) (string, error)
	CreatePaymentLink(ctx context.Context, token string, amount int64, orderID string) (string, error)
}

// Placer creates orders. It never retries.
type Placer struct {
	backend        Backend
	events         events.Publisher
	payloadVersion int
	assetBaseURL   string
	log            *zap.Logger
	nowFunc        func() time.Time
}

// NewPlacer returns a placer emitting payloadVersion bodies. pub may be nil.
func NewPlacer(b Backend, pub events.Publisher, payloadVersion int, assetBaseURL string, log *zap.Logger) *Placer {
	if pub == nil {
		pub = events.Nop{}
	}
	if payloadVersion != PayloadV1 {
		payloadVersion = PayloadV2
	}
	return &Placer{
		backend:        b,
		events:         pub,
		payloadVersion: payloadVersion,
		assetBaseURL:   assetBaseURL,
		log:            logger.OrNop(log),
		nowFunc:        time.Now,
	}
}

// Place creates the order, then requests a payment link for redirect
// methods. A draft that already created an order for the same lines and
// delivery details only requests a new link.
func (p *Placer) Place(ctx context.Context, req checkout.PlaceRequest) (checkout.Placement, error) {
	d := req.Draft
	total := checkout.OrderTotal(req.Lines, d.ShippingMethod)
	redirect := checkout.IsRedirectMethod(d.PaymentMethod)

	if redirect && d.CanReuseOrder(req.Lines) {
		url, err := p.paymentLink(ctx, req.AuthToken, total, d.CreatedOrderID)
		if err != nil {
			return checkout.Placement{}, err
		}
		return checkout.Placement{OrderID: d.CreatedOrderID, RedirectURL: url, Reused: true}, nil
	}

	payload := BuildPayload(p.payloadVersion, p.assetBaseURL, req.Lines, d)
	orderID, err := p.backend.CreateOrder(ctx, backend.CreateOrderRequest{
		Token:          req.AuthToken,
		Payload:        payload,
		PayloadVersion: p.payloadVersion,
		IdempotencyKey: d.SubmissionKey,
	})
	if err != nil {
		msg := backend.MessageOf(err)
		if msg == "" {
			msg = msgCreateFailed
		}
		return checkout.Placement{}, &checkout.SubmitError{Stage: checkout.StageCreateOrder, Message: msg, Err: err}
	}
	p.log.Info("order created",
		zap.String("session_id", req.SessionID),
		zap.String("order_id", orderID),
		zap.String("payment_method", payload.PaymentMethod),
		zap.Int64("total", total))

	p.publish(ctx, events.CheckoutEvent{
		Event:         events.OrderPlaced,
		SessionID:     req.SessionID,
		OrderID:       orderID,
		PaymentMethod: payload.PaymentMethod,
		Amount:        total,
		State:         payload.PaymentStatus,
	})

	if !redirect {
		return checkout.Placement{OrderID: orderID}, nil
	}
	url, err := p.paymentLink(ctx, req.AuthToken, total, orderID)
	if err != nil {
		return checkout.Placement{}, err
	}
	return checkout.Placement{OrderID: orderID, RedirectURL: url}, nil
}

func (p *Placer) paymentLink(ctx context.Context, token string, total int64, orderID string) (string, error) {
	url, err := p.backend.CreatePaymentLink(ctx, token, total, orderID)
	if err != nil {
		return "", &checkout.SubmitError{Stage: checkout.StageCreatePaymentLink, Message: msgLinkFailed, OrderID: orderID, Err: err}
	}
	return url, nil
}

func (p *Placer) publish(ctx context.Context, ev events.CheckoutEvent) {
	ev.OccurredAt = p.nowFunc().UTC()
	if err := p.events.Publish(ctx, ev); err != nil {
		p.log.Warn("publish checkout event failed", zap.String("event", ev.Event), zap.Error(err))
	}
}
