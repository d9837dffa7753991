package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-outfit-pipeline/internal/checkout"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
)

const (
	declinedTokenPrefix = "tok_fail"
	declinedMessage     = "payment declined"

	metricConfirmed = "OrdersConfirmed"
	metricFailed    = "OrdersFailed"
)

// Recorder receives one data point per finished order.
type Recorder interface {
	Record(ctx context.Context, name string, value float64, unit string)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, float64, string) {}

// Processor handles SQS messages and performs order lifecycle transitions.
type Processor struct {
	orders      *orders.Store
	receiptBase string
	metrics     Recorder
	log         *logger.Logger
}

// NewProcessor builds a processor. metrics and log may be nil.
func NewProcessor(orderStore *orders.Store, receiptBase string, metrics Recorder, log *logger.Logger) *Processor {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Processor{
		orders:      orderStore,
		receiptBase: receiptBase,
		metrics:     metrics,
		log:         logger.OrNop(log).With("component", "worker"),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.Debug("received batch", "records", len(ev.Records))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			p.log.Error("worker error", "message_id", rec.MessageId, "error", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg checkout.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.OrderID == "" {
		return errors.New("invalid message body: missing order_id")
	}
	log := p.log.With("order_id", msg.OrderID, "idempotency_key", msg.IdempotencyKey, "correlation_id", msg.CorrelationID)

	order, err := p.orders.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}
	if order.Terminal() {
		log.Info("order already finished", "status", order.Status)
		return nil
	}

	if order.Status == orders.StatusPending {
		err = p.orders.UpdateStatus(ctx, msg.OrderID, orders.StatusPending, orders.StatusProcessing)
		if errors.Is(err, orders.ErrStatusMismatch) {
			// a competing delivery moved it first
			log.Info("duplicate delivery, order claimed elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("update status to PROCESSING: %w", err)
		}
	} else {
		// redelivery after a crash mid-payment
		log.Warn("resuming order left in PROCESSING")
	}

	if err := p.orders.IncrementAttempts(ctx, msg.OrderID); err != nil {
		return err
	}

	if strings.HasPrefix(order.Payment.Token, declinedTokenPrefix) {
		err = p.orders.Fail(ctx, msg.OrderID, orders.StatusProcessing, declinedMessage)
		if err == nil {
			p.metrics.Record(ctx, metricFailed, 1, "Count")
			log.Info("order failed", "reason", declinedMessage)
		}
	} else {
		err = p.orders.Confirm(ctx, msg.OrderID, p.receiptBase+msg.OrderID)
		if err == nil {
			p.metrics.Record(ctx, metricConfirmed, 1, "Count")
			log.Info("order confirmed", "total", order.Total, "currency", order.Currency)
		}
	}
	if errors.Is(err, orders.ErrStatusMismatch) {
		log.Info("order finished by another delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish order: %w", err)
	}
	return nil
}
