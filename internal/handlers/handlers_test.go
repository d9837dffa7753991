package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-outfit-pipeline/internal/aws"
	"github.com/imrishuroy/go-outfit-pipeline/internal/aws/awstest"
	"github.com/imrishuroy/go-outfit-pipeline/internal/cart"
	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
	"github.com/imrishuroy/go-outfit-pipeline/internal/checkout"
	"github.com/imrishuroy/go-outfit-pipeline/internal/idempotency"
	"github.com/imrishuroy/go-outfit-pipeline/internal/normalize"
	"github.com/imrishuroy/go-outfit-pipeline/internal/orders"
	"github.com/imrishuroy/go-outfit-pipeline/internal/pipeline"
)

type testServer struct {
	router *gin.Engine
	cat    *catalog.Catalog
	dynamo *awstest.Dynamo
	queue  *awstest.SQS
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cat, err := catalog.Demo()
	if err != nil {
		t.Fatalf("demo catalog: %v", err)
	}
	mock := awstest.NewDynamo().
		CreateTable("carts", "cart_id").
		CreateTable("orders", "order_id").
		CreateTable("idempotency", "idempotency_key")
	queue := &awstest.SQS{}

	carts := cart.NewStore(mock, "carts", cat)
	orderStore := orders.NewStore(mock, "orders")
	idemp := idempotency.NewStore(mock, "idempotency", 48*time.Hour)
	clock := func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	RegisterRoutes(r, HandlerConfig{
		Pipeline:    pipeline.New(cat),
		Normalizer:  normalize.New(normalize.WithClock(clock)),
		Carts:       carts,
		Orders:      orderStore,
		Idempotency: idemp,
		Checkout:    checkout.NewService(carts, cat, orderStore, idemp, aws.NewPublisher(queue, "q"), nil),
	})
	return &testServer{router: r, cat: cat, dynamo: mock, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

// twoItems returns ids of two items sold by the same shop.
func (s *testServer) twoItems(t *testing.T) (string, string) {
	t.Helper()
	items := s.cat.Items(catalog.DemoShops[0])
	if len(items) < 2 {
		t.Fatal("demo shop has fewer than two items")
	}
	return items[0].ID, items[1].ID
}

const pipelineBody = `{
	"request": {
		"budget": {"currency": "USD", "max": 700},
		"deadline": "2030-01-01",
		"preferences": {"color": "black", "size": "M"},
		"categories": ["jacket", "pants", "boots", "gloves", "baseLayer", "baseBottom"]
	},
	"prompt": "black ski outfit"
}`

func TestPipelineRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/pipeline", pipelineBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res pipeline.Result
	decode(t, w, &res)
	if res.InfeasibleReason != "" || len(res.OutfitOptions) == 0 || res.RecommendedOutfitID == "" {
		t.Fatalf("unexpected result reason=%q options=%d", res.InfeasibleReason, len(res.OutfitOptions))
	}
	if res.Ranked[0].OutfitID != res.RecommendedOutfitID {
		t.Fatal("recommended outfit must be ranked first")
	}
}

func TestPipelineRoute_Weights(t *testing.T) {
	s := newTestServer(t)
	body := strings.Replace(pipelineBody, `"prompt"`, `"weights": {"price": 1, "coherence": 0}, "prompt"`, 1)
	w := s.do(t, http.MethodPost, "/pipeline", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res pipeline.Result
	decode(t, w, &res)
	for _, sc := range res.Scores {
		if sc.Combined != sc.Price {
			t.Fatalf("weights override ignored: %+v", sc)
		}
	}
}

func TestPipelineRoute_Infeasible(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/pipeline", `{"request": {"preferences": {"color": "black"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("missing information is a reported outcome, got %d", w.Code)
	}
	var res pipeline.Result
	decode(t, w, &res)
	if !strings.HasPrefix(res.InfeasibleReason, pipeline.ReasonMissingPrefix) || len(res.MissingInfo) == 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPipelineRoute_BadRequests(t *testing.T) {
	s := newTestServer(t)
	for name, body := range map[string]string{
		"malformed":        `{"request":`,
		"unknown category": `{"request": {"categories": ["helmet"]}}`,
		"negative weight":  `{"request": {}, "weights": {"price": -1, "coherence": 1}}`,
	} {
		if w := s.do(t, http.MethodPost, "/pipeline", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestNormalizeRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/normalize", `{"message": "I need a full ski outfit under $700"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out normalize.Output
	decode(t, w, &out)
	if out.Request.Budget == nil || out.Request.Budget.Max != 700 {
		t.Fatalf("budget not extracted: %+v", out.Request)
	}
	if out.ClarifyingQuestion == nil {
		t.Fatal("expected a clarifying question for the missing details")
	}

	if w := s.do(t, http.MethodPost, "/normalize", `{"message": ""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", w.Code)
	}
}

func TestCartRoutes(t *testing.T) {
	s := newTestServer(t)
	a, b := s.twoItems(t)

	w := s.do(t, http.MethodPost, "/carts", `{"selection": {"outfitId": "o1", "itemIds": ["`+a+`"]}, "user": {"userId": "u1"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var c cart.Cart
	decode(t, w, &c)
	if c.CartID == "" || w.Header().Get("Location") != "/carts/"+c.CartID || len(c.LineItems) != 1 {
		t.Fatalf("unexpected cart %+v", c)
	}

	w = s.do(t, http.MethodPost, "/carts/"+c.CartID+"/items", `{"itemId": "`+b+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &c)
	if len(c.LineItems) != 2 || c.LineItems[1].Quantity != 1 {
		t.Fatalf("unexpected cart after add %+v", c)
	}

	w = s.do(t, http.MethodDelete, "/carts/"+c.CartID+"/items/"+a, "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d", w.Code)
	}
	decode(t, w, &c)
	if len(c.LineItems) != 1 || c.LineItems[0].ItemID != b {
		t.Fatalf("unexpected cart after remove %+v", c)
	}

	if w := s.do(t, http.MethodGet, "/carts/"+c.CartID, ""); w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/carts/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/carts", `{"selection": {"itemIds": ["ghost"]}}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown item, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/carts/"+c.CartID+"/items", `{"itemId": "`+b+`", "quantity": 99}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for quantity, got %d", w.Code)
	}
}

func TestCreateCart_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	a, _ := s.twoItems(t)
	body := `{"selection": {"itemIds": ["` + a + `"]}}`

	first := s.do(t, http.MethodPost, "/carts", body, "Idempotency-Key", "cart-key")
	second := s.do(t, http.MethodPost, "/carts", body, "Idempotency-Key", "cart-key")
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	var c1, c2 cart.Cart
	decode(t, first, &c1)
	decode(t, second, &c2)
	if c1.CartID != c2.CartID || s.dynamo.Len("carts") != 1 {
		t.Fatalf("replay created a second cart: %s vs %s", c1.CartID, c2.CartID)
	}
}

func TestCheckoutAndOrderRoutes(t *testing.T) {
	s := newTestServer(t)
	a, _ := s.twoItems(t)
	w := s.do(t, http.MethodPost, "/carts", `{"selection": {"itemIds": ["`+a+`"]}}`)
	var c cart.Cart
	decode(t, w, &c)

	body := `{
		"cartId": "` + c.CartID + `",
		"payment": {"provider": "mock", "token": "tok_visa"},
		"shipping": {"name": "Ada", "address1": "1 Slope Rd", "city": "Aspen", "postalCode": "81611", "country": "US"},
		"contact": {"email": "ada@example.com"}
	}`

	if w := s.do(t, http.MethodPost, "/checkout", body); w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "missing_idempotency_key") {
		t.Fatalf("expected missing_idempotency_key, got %d %s", w.Code, w.Body.String())
	}

	first := s.do(t, http.MethodPost, "/checkout", body, "Idempotency-Key", "k1", "X-Request-Id", "req-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	var resp checkout.Response
	decode(t, first, &resp)
	if resp.OrderID == "" || resp.Status != orders.StatusPending || resp.Total != c.Totals.Total {
		t.Fatalf("unexpected checkout response %+v", resp)
	}
	if first.Header().Get("Location") != "/orders/"+resp.OrderID {
		t.Fatalf("unexpected Location %q", first.Header().Get("Location"))
	}

	second := s.do(t, http.MethodPost, "/checkout", body, "Idempotency-Key", "k1")
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("expected replayed response, got %d %s", second.Code, second.Body.String())
	}
	if len(s.queue.Sent()) != 1 {
		t.Fatalf("expected one queued message, got %d", len(s.queue.Sent()))
	}

	w = s.do(t, http.MethodGet, "/orders/"+resp.OrderID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "tok_visa") {
		t.Fatal("payment token leaked in order response")
	}
	var o orders.Order
	decode(t, w, &o)
	if o.Status != orders.StatusPending || o.Shipping.City != "Aspen" || len(o.LineItems) != 1 {
		t.Fatalf("unexpected order %+v", o)
	}

	if w := s.do(t, http.MethodGet, "/orders/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCheckout_Errors(t *testing.T) {
	s := newTestServer(t)
	body := func(cartID string) string {
		return `{"cartId": "` + cartID + `", "payment": {"provider": "mock", "token": "t"},
			"shipping": {"name": "A", "address1": "1", "city": "C", "postalCode": "1", "country": "US"}}`
	}

	if w := s.do(t, http.MethodPost, "/checkout", body("nope"), "Idempotency-Key", "k1"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cart, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/checkout", `{"cartId": "x"}`, "Idempotency-Key", "k2"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing payment and shipping, got %d", w.Code)
	}

	a, _ := s.twoItems(t)
	w := s.do(t, http.MethodPost, "/carts", `{"selection": {"itemIds": ["`+a+`"]}}`)
	var c cart.Cart
	decode(t, w, &c)
	s.queue.Err = http.ErrHandlerTimeout
	if w := s.do(t, http.MethodPost, "/checkout", body(c.CartID), "Idempotency-Key", "k3"); w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "enqueue_failed") {
		t.Fatalf("expected enqueue_failed, got %d %s", w.Code, w.Body.String())
	}
	s.queue.Err = nil
	if w := s.do(t, http.MethodPost, "/checkout", body(c.CartID), "Idempotency-Key", "k3"); w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "previous_attempt_failed") {
		t.Fatalf("expected previous_attempt_failed, got %d %s", w.Code, w.Body.String())
	}
}
