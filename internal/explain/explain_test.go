package explain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestOpenAI_Explain(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  A warm, coherent pick.  "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Model: "gpt-4o-mini"})
	text, err := gen.Explain(context.Background(), "black ski outfit", "jacket: Shell (alpineMart, USD 100)")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if text != "A warm, coherent pick." {
		t.Fatalf("unexpected text %q", text)
	}
	if got["model"] != "gpt-4o-mini" || got["max_tokens"] != float64(100) || got["temperature"] != 0.5 {
		t.Fatalf("unexpected request %v", got)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", got["messages"])
	}
	user, _ := msgs[1].(map[string]any)
	if content, _ := user["content"].(string); !strings.Contains(content, `"black ski outfit"`) {
		t.Fatalf("user message must quote the prompt, got %v", user)
	}
}

func TestOpenAI_ErrorsAndEmptyChoices(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := int(status.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m"})
	if _, err := gen.Explain(context.Background(), "p", "d"); err == nil {
		t.Fatal("expected error on 500")
	}
	status.Store(http.StatusOK)
	if _, err := gen.Explain(context.Background(), "p", "d"); !errors.Is(err, ErrNoChoices) {
		t.Fatalf("expected ErrNoChoices, got %v", err)
	}
}

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttl     time.Duration
	failGet bool
	failSet bool
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return redis.NewStatusResult("", errors.New("read only replica"))
	}
	f.data[key] = value.(string)
	f.ttl = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingGen struct {
	text  string
	err   error
	calls int
}

func (g *countingGen) Explain(ctx context.Context, prompt, description string) (string, error) {
	g.calls++
	return g.text, g.err
}

func TestCached_HitAndMiss(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}}
	next := &countingGen{text: "Nice."}
	c := NewCached(next, rdb, time.Hour, nil)

	for i := 0; i < 3; i++ {
		text, err := c.Explain(context.Background(), "p", "d")
		if err != nil || text != "Nice." {
			t.Fatalf("call %d: got %q, %v", i, text, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
	if rdb.ttl != time.Hour {
		t.Fatalf("expected ttl to be passed through, got %v", rdb.ttl)
	}
	if _, ok := rdb.data[Key("p", "d")]; !ok {
		t.Fatal("expected value stored under Key(p, d)")
	}
}

func TestCached_BypassesBrokenCache(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}, failGet: true, failSet: true}
	next := &countingGen{text: "Still works."}
	c := NewCached(next, rdb, time.Minute, nil)

	text, err := c.Explain(context.Background(), "p", "d")
	if err != nil || text != "Still works." {
		t.Fatalf("got %q, %v", text, err)
	}
}

func TestCached_DoesNotStoreFailures(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}}
	next := &countingGen{err: errors.New("rate limited")}
	c := NewCached(next, rdb, time.Minute, nil)

	if _, err := c.Explain(context.Background(), "p", "d"); err == nil {
		t.Fatal("expected upstream error")
	}
	if len(rdb.data) != 0 {
		t.Fatal("failures must not be cached")
	}
}

func TestKeyIsStable(t *testing.T) {
	if Key("a", "b") != Key("a", "b") {
		t.Fatal("key must be deterministic")
	}
	if Key("a", "b") == Key("a", "c") {
		t.Fatal("different descriptions must not share a key")
	}
	if !strings.HasPrefix(Key("a", "b"), keyPrefix) {
		t.Fatal("missing prefix")
	}
}
