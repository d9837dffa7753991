// Package checkout turns a cart into a PENDING order exactly once per
// idempotency key and hands it to the worker queue.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-outfit-pipeline/internal/cart"
	"github.com/imrishuroy/go-outfit-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-outfit-pipeline/internal/logger"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
)

var (
	ErrMissingKey    = errors.New("missing idempotency key")
	ErrCartNotFound  = errors.New("cart not found")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrTotalMismatch = errors.New("cart total changed")
	ErrEnqueue       = errors.New("enqueue failed")
)

// State describes how a checkout call was resolved.
type State int

const (
	StateCreated State = iota + 1
	// StateReplayed returns the stored response of a finished attempt.
	StateReplayed
	StateInProgress
	// StatePreviousFailed means the key is burnt; the client needs a new key.
	StatePreviousFailed
)

// Message is the payload sent from API -> SQS -> worker.
type Message struct {
	OrderID        string `json:"order_id"`
	IdempotencyKey string `json:"idempotency_key"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// Response is the body of a successful checkout.
type Response struct {
	OrderID  string  `json:"orderId"`
	Status   string  `json:"status"`
	Currency string  `json:"currency"`
	Total    float64 `json:"total"`
}

// Request carries one checkout attempt.
type Request struct {
	IdempotencyKey string
	CorrelationID  string
	CartID         string
	Payment        orders.Payment
	Shipping       orders.Shipping
	Contact        orders.Contact
	ExpectedTotal  *float64
}

// Result is what the HTTP layer renders. Body is set for StateCreated and
// StateReplayed.
type Result struct {
	State      State
	OrderID    string
	StatusCode int
	Body       []byte
}

type Carts interface {
	Get(ctx context.Context, id string) (*cart.Cart, error)
}

type Publisher interface {
	SendJSON(ctx context.Context, v any, attributes map[string]string) (string, error)
}

type Service struct {
	carts   Carts
	items   cart.ItemLookup
	orders  *orders.Store
	idemp   *idempotency.Store
	pub     Publisher
	log     *logger.Logger
	nowFunc func() time.Time
	newID   func() string
}

func NewService(carts Carts, items cart.ItemLookup, orderStore *orders.Store, idempStore *idempotency.Store, pub Publisher, log *logger.Logger) *Service {
	return &Service{
		carts:   carts,
		items:   items,
		orders:  orderStore,
		idemp:   idempStore,
		pub:     pub,
		log:     logger.OrNop(log).With("component", "checkout"),
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// Checkout creates the order and its idempotency record atomically, then
// enqueues it. A repeated key resolves to the earlier attempt.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	if req.IdempotencyKey == "" {
		return nil, ErrMissingKey
	}
	key := idempotency.ScopedKey(idempotency.ScopeCheckout, req.IdempotencyKey)

	if res, err := s.replay(ctx, key); err != nil || res != nil {
		return res, err
	}

	order, err := s.buildOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	rec := s.idemp.NewRecord(key, order.OrderID)
	err = s.orders.CreateWithIdempotency(ctx, s.idemp.Table(), rec, *order, s.idemp.TTL())
	if errors.Is(err, orders.ErrIdempotencyConflict) {
		// lost a race with a concurrent request using the same key
		res, getErr := s.replay(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		if res == nil {
			return nil, fmt.Errorf("transaction failed but no idempotency record found: %w", err)
		}
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	msg := Message{OrderID: order.OrderID, IdempotencyKey: key, CorrelationID: req.CorrelationID}
	attrs := map[string]string{
		"idempotency_key": key,
		"order_id":        order.OrderID,
		"correlation_id":  req.CorrelationID,
	}
	if _, err := s.pub.SendJSON(ctx, msg, attrs); err != nil {
		if markErr := s.idemp.MarkFailed(ctx, key, fmt.Sprintf("sqs_send_failed: %v", err)); markErr != nil {
			s.log.Error("mark idempotency failed", "order_id", order.OrderID, "error", markErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	body, err := json.Marshal(Response{OrderID: order.OrderID, Status: order.Status, Currency: order.Currency, Total: order.Total})
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	if err := s.idemp.MarkDone(ctx, key, string(body), http.StatusCreated); err != nil {
		// the order exists and is queued; a retry will see IN_PROGRESS
		s.log.Warn("mark idempotency done failed", "order_id", order.OrderID, "error", err)
	}
	s.log.Info("order created", "order_id", order.OrderID, "cart_id", order.CartID, "total", order.Total, "correlation_id", req.CorrelationID)
	return &Result{State: StateCreated, OrderID: order.OrderID, StatusCode: http.StatusCreated, Body: body}, nil
}

// replay returns (nil, nil) when key has not been used.
func (s *Service) replay(ctx context.Context, key string) (*Result, error) {
	rec, err := s.idemp.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	switch rec.Status {
	case idempotency.StatusDone:
		status := rec.ResponseStatus
		if status == 0 {
			status = http.StatusOK
		}
		body := []byte(rec.ResponseBody)
		if !json.Valid(body) {
			body, _ = json.Marshal(map[string]string{"orderId": rec.ResourceID})
		}
		return &Result{State: StateReplayed, OrderID: rec.ResourceID, StatusCode: status, Body: body}, nil
	case idempotency.StatusInProgress:
		return &Result{State: StateInProgress, OrderID: rec.ResourceID, StatusCode: http.StatusAccepted}, nil
	case idempotency.StatusFailed:
		return &Result{State: StatePreviousFailed, OrderID: rec.ResourceID, StatusCode: http.StatusInternalServerError}, nil
	default:
		return nil, fmt.Errorf("unknown idempotency status %q", rec.Status)
	}
}

func (s *Service) buildOrder(ctx context.Context, req Request) (*orders.Order, error) {
	c, err := s.carts.Get(ctx, req.CartID)
	if errors.Is(err, cart.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, req.CartID)
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(c.LineItems) == 0 {
		return nil, ErrEmptyCart
	}
	if req.ExpectedTotal != nil && math.Round(*req.ExpectedTotal*100) != math.Round(c.Totals.Total*100) {
		return nil, fmt.Errorf("%w: expected %.2f, cart total is %.2f", ErrTotalMismatch, *req.ExpectedTotal, c.Totals.Total)
	}

	lines := make([]orders.LineItem, 0, len(c.LineItems))
	for _, l := range c.LineItems {
		it, ok := s.items.Lookup(l.ItemID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", cart.ErrUnknownItem, l.ItemID)
		}
		lines = append(lines, orders.LineItem{ItemID: it.ID, Title: it.Title, Shop: it.Shop, Quantity: l.Quantity, UnitPrice: it.Price})
	}

	now := s.nowFunc().UTC()
	return &orders.Order{
		OrderID:   s.newID(),
		CartID:    c.CartID,
		UserID:    c.UserID,
		Status:    orders.StatusPending,
		Currency:  c.Totals.Currency,
		Total:     c.Totals.Total,
		LineItems: lines,
		Shipping:  req.Shipping,
		Contact:   req.Contact,
		Payment:   req.Payment,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
