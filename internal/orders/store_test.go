package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-outfit-pipeline/internal/aws/awstest"
)

const (
	ordersTable = "orders"
	idempTable  = "idempotency"
)

func newTestStore() (*Store, *awstest.Dynamo) {
	mock := awstest.NewDynamo().CreateTable(ordersTable, "order_id").CreateTable(idempTable, "idempotency_key")
	s := NewStore(mock, ordersTable)
	s.nowFunc = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	return s, mock
}

func sampleOrder(id string) Order {
	return Order{
		OrderID:   id,
		CartID:    "cart-1",
		Status:    StatusPending,
		Currency:  "USD",
		Total:     565.99,
		LineItems: []LineItem{{ItemID: "alpinemart-summit-shell-jacket-black-shell", Quantity: 1, UnitPrice: 189.99}},
		Shipping:  Shipping{Name: "Ada", Address1: "1 Slope Rd", City: "Aspen", PostalCode: "81611", Country: "US"},
		Payment:   Payment{Provider: "mock", Token: "tok_ok"},
	}
}

func TestCreateWithIdempotency_Success(t *testing.T) {
	store, mock := newTestStore()
	idemp := map[string]interface{}{"idempotency_key": "key-1", "status": "IN_PROGRESS"}

	if err := store.CreateWithIdempotency(context.Background(), idempTable, idemp, sampleOrder("order-1"), 48*time.Hour); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	idempItem := mock.Item(idempTable, "key-1")
	if idempItem == nil {
		t.Fatalf("idempotency item not stored")
	}
	if exp, ok := idempItem["expires_at"].(*types.AttributeValueMemberN); !ok || exp.Value == "" {
		t.Fatalf("expires_at not added: %+v", idempItem["expires_at"])
	}

	got, err := store.Get(context.Background(), "order-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Status != StatusPending || got.Payment.Token != "tok_ok" || len(got.LineItems) != 1 {
		t.Fatalf("unexpected order %+v", got)
	}
	if !got.CreatedAt.Equal(store.nowFunc()) {
		t.Fatalf("created_at not defaulted: %v", got.CreatedAt)
	}
}

func TestCreateWithIdempotency_ExistingKey(t *testing.T) {
	store, mock := newTestStore()
	_ = mock.Seed(idempTable, map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: "key-2"},
		"status":          &types.AttributeValueMemberS{Value: "DONE"},
	})

	err := store.CreateWithIdempotency(context.Background(), idempTable, map[string]interface{}{"idempotency_key": "key-2"}, sampleOrder("order-2"), time.Hour)
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
	if mock.Len(ordersTable) != 0 {
		t.Fatal("order must not be written")
	}
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStore()
	o, err := store.Get(context.Background(), "nope")
	if err != nil || o != nil {
		t.Fatalf("expected (nil, nil), got %v, %v", o, err)
	}
}

func TestTransitions(t *testing.T) {
	store, mock := newTestStore()
	item, _ := attributevalue.MarshalMap(sampleOrder("order-10"))
	_ = mock.Seed(ordersTable, item)
	ctx := context.Background()

	if err := store.UpdateStatus(ctx, "order-10", StatusPending, StatusProcessing); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := store.UpdateStatus(ctx, "order-10", StatusPending, StatusConfirmed); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
	if err := store.Confirm(ctx, "order-10", "https://receipts.example/order-10"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := store.Fail(ctx, "order-10", StatusProcessing, "declined"); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("confirmed order must not fail, got %v", err)
	}

	got, _ := store.Get(ctx, "order-10")
	if got.Status != StatusConfirmed || got.ReceiptURL != "https://receipts.example/order-10" || !got.Terminal() {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestIncrementAttempts(t *testing.T) {
	store, mock := newTestStore()
	item, _ := attributevalue.MarshalMap(sampleOrder("order-3"))
	_ = mock.Seed(ordersTable, item)

	for i := 0; i < 2; i++ {
		if err := store.IncrementAttempts(context.Background(), "order-3"); err != nil {
			t.Fatalf("IncrementAttempts: %v", err)
		}
	}
	got, _ := store.Get(context.Background(), "order-3")
	if got.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", got.Attempts)
	}
	if err := store.IncrementAttempts(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
