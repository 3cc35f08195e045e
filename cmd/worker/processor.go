package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/aws"
	checkoutevents "github.com/Sung-star/storefront-checkout/internal/events"
	"github.com/Sung-star/storefront-checkout/internal/idempotency"
	"github.com/Sung-star/storefront-checkout/internal/logger"
)

// Payment outcome states carried by checkout.payment_reconciled events.
const (
	stateSuccess = "SUCCESS"
	stateFailure = "FAILURE"
)

// Metrics is the subset of aws.MetricsClient used by the processor.
type Metrics interface {
	RecordCount(ctx context.Context, name string, dimensions map[string]string) error
	RecordOrderPlaced(ctx context.Context, amount float64, dimensions map[string]string) error
}

// Deliveries remembers which SQS messages were already counted.
type Deliveries interface {
	CreateIfNotExists(ctx context.Context, key, reference string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Processor turns checkout events into CloudWatch metrics, at most once per
// SQS message.
type Processor struct {
	metrics    Metrics
	deliveries Deliveries
	log        *zap.Logger
}

// NewProcessor returns a processor. deliveries may be nil to count every delivery.
func NewProcessor(metrics Metrics, deliveries Deliveries, log *zap.Logger) *Processor {
	return &Processor{metrics: metrics, deliveries: deliveries, log: logger.OrNop(log)}
}

// Handle processes a batch and reports the failed messages so only they are
// redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg checkoutevents.CheckoutEvent
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	key := "metrics#" + rec.MessageId
	if p.deliveries != nil && rec.MessageId != "" {
		first, err := p.claim(ctx, key, msg.Event)
		if err != nil {
			return err
		}
		if !first {
			p.log.Info("duplicate delivery", zap.String("message_id", rec.MessageId), zap.String("event", msg.Event))
			return nil
		}
	}

	if err := p.record(ctx, msg); err != nil {
		if p.deliveries != nil && rec.MessageId != "" {
			if merr := p.deliveries.MarkFailed(ctx, key, err.Error()); merr != nil {
				p.log.Warn("mark delivery failed", zap.String("message_id", rec.MessageId), zap.Error(merr))
			}
		}
		return err
	}

	if p.deliveries != nil && rec.MessageId != "" {
		if err := p.deliveries.MarkDone(ctx, key, "", 200); err != nil {
			p.log.Warn("mark delivery done failed", zap.String("message_id", rec.MessageId), zap.Error(err))
		}
	}
	p.log.Info("recorded checkout event",
		zap.String("event", msg.Event),
		zap.String("order_id", msg.OrderID),
		zap.String("session_id", msg.SessionID))
	return nil
}

// claim reports whether this delivery should be counted: it is new, or an
// earlier attempt failed before finishing.
func (p *Processor) claim(ctx context.Context, key, event string) (bool, error) {
	created, err := p.deliveries.CreateIfNotExists(ctx, key, event)
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	if created {
		return true, nil
	}
	rec, err := p.deliveries.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read delivery: %w", err)
	}
	if rec == nil || rec.Status != idempotency.StatusFailed {
		return false, nil
	}
	return p.deliveries.Reclaim(ctx, key)
}

func (p *Processor) record(ctx context.Context, msg checkoutevents.CheckoutEvent) error {
	switch msg.Event {
	case checkoutevents.OrderPlaced:
		// count and amount go out together so a retried delivery never repeats one of them
		return p.metrics.RecordOrderPlaced(ctx, float64(msg.Amount), map[string]string{"PaymentMethod": msg.PaymentMethod})
	case checkoutevents.PaymentReconciled:
		switch msg.State {
		case stateSuccess:
			return p.metrics.RecordCount(ctx, aws.MetricPaymentsReconciled, nil)
		case stateFailure:
			return p.metrics.RecordCount(ctx, aws.MetricPaymentsFailed, nil)
		}
		return nil
	default:
		p.log.Warn("unknown checkout event", zap.String("event", msg.Event))
		return p.metrics.RecordCount(ctx, aws.MetricUnknownCheckoutEvent, map[string]string{"Event": msg.Event})
	}
}
