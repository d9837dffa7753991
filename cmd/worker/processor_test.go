package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/go-outfit-pipeline/internal/aws/awstest"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
)

type countingRecorder struct {
	counts map[string]float64
}

func (c *countingRecorder) Record(_ context.Context, name string, value float64, _ string) {
	c.counts[name] += value
}

func newTestProcessor(t *testing.T, seed ...orders.Order) (*Processor, *orders.Store, *countingRecorder, *awstest.Dynamo) {
	t.Helper()
	mock := awstest.NewDynamo().CreateTable("orders", "order_id")
	for _, o := range seed {
		item, err := attributevalue.MarshalMap(o)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := mock.Seed("orders", item); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	store := orders.NewStore(mock, "orders")
	rec := &countingRecorder{counts: map[string]float64{}}
	return NewProcessor(store, "https://receipts.test/", rec, nil), store, rec, mock
}

func order(id, status, token string) orders.Order {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return orders.Order{
		OrderID:   id,
		CartID:    "cart-1",
		Status:    status,
		Currency:  "USD",
		Total:     229.98,
		Payment:   orders.Payment{Provider: "mock", Token: token},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func event(bodies ...string) events.SQSEvent {
	var ev events.SQSEvent
	for _, b := range bodies {
		ev.Records = append(ev.Records, events.SQSMessage{MessageId: "m", Body: b})
	}
	return ev
}

func TestHandle_ConfirmsPendingOrder(t *testing.T) {
	p, store, rec, _ := newTestProcessor(t, order("o1", orders.StatusPending, "tok_ok"))
	if err := p.Handle(context.Background(), event(`{"order_id":"o1","idempotency_key":"checkout#k1"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got, _ := store.Get(context.Background(), "o1")
	if got.Status != orders.StatusConfirmed || got.ReceiptURL != "https://receipts.test/o1" || got.Attempts != 1 {
		t.Fatalf("unexpected order %+v", got)
	}
	if rec.counts[metricConfirmed] != 1 || rec.counts[metricFailed] != 0 {
		t.Fatalf("unexpected metrics %v", rec.counts)
	}
}

func TestHandle_DeclinedPaymentFailsOrder(t *testing.T) {
	p, store, rec, _ := newTestProcessor(t, order("o1", orders.StatusPending, "tok_fail_card"))
	if err := p.Handle(context.Background(), event(`{"order_id":"o1"}`)); err != nil {
		t.Fatalf("a declined payment is final, not a retry: %v", err)
	}
	got, _ := store.Get(context.Background(), "o1")
	if got.Status != orders.StatusFailed || got.Message != declinedMessage || got.ReceiptURL != "" {
		t.Fatalf("unexpected order %+v", got)
	}
	if rec.counts[metricFailed] != 1 {
		t.Fatalf("unexpected metrics %v", rec.counts)
	}
}

func TestHandle_DuplicateDeliveryIsNoop(t *testing.T) {
	p, store, rec, mock := newTestProcessor(t, order("o1", orders.StatusPending, "tok_ok"))
	ctx := context.Background()
	body := `{"order_id":"o1"}`
	if err := p.Handle(ctx, event(body)); err != nil {
		t.Fatalf("first: %v", err)
	}
	updates := mock.Calls("UpdateItem")
	if err := p.Handle(ctx, event(body)); err != nil {
		t.Fatalf("second: %v", err)
	}
	if mock.Calls("UpdateItem") != updates {
		t.Fatal("finished order must not be written again")
	}
	got, _ := store.Get(ctx, "o1")
	if got.Attempts != 1 || rec.counts[metricConfirmed] != 1 {
		t.Fatalf("unexpected state after duplicate: %+v %v", got, rec.counts)
	}
}

func TestHandle_ResumesProcessingOrder(t *testing.T) {
	stuck := order("o1", orders.StatusProcessing, "tok_ok")
	stuck.Attempts = 1
	p, store, _, _ := newTestProcessor(t, stuck)
	if err := p.Handle(context.Background(), event(`{"order_id":"o1"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got, _ := store.Get(context.Background(), "o1")
	if got.Status != orders.StatusConfirmed || got.Attempts != 2 {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestHandle_Errors(t *testing.T) {
	p, store, _, mock := newTestProcessor(t, order("o1", orders.StatusPending, "tok_ok"))
	ctx := context.Background()

	for name, body := range map[string]string{
		"malformed":     `{"order_id":`,
		"no order id":   `{"idempotency_key":"k"}`,
		"unknown order": `{"order_id":"ghost"}`,
	} {
		if err := p.Handle(ctx, event(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	// a bad record stops the batch so Lambda retries it
	if err := p.Handle(ctx, event(`{"order_id":"ghost"}`, `{"order_id":"o1"}`)); err == nil {
		t.Fatal("expected batch error")
	}
	got, _ := store.Get(ctx, "o1")
	if got.Status != orders.StatusPending {
		t.Fatalf("records after a failure must be left for the retry, got %s", got.Status)
	}

	mock.FailOn("UpdateItem", errors.New("throttled"))
	if err := p.Handle(ctx, event(`{"order_id":"o1"}`)); err == nil {
		t.Fatal("expected transport error")
	}
}
