package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"order-gateway/internal/config"
	"order-gateway/internal/execution"
	"order-gateway/internal/monitor"
	"order-gateway/internal/position"
	"order-gateway/internal/store"
)

type syncBackend struct {
	mu       sync.Mutex
	requests []execution.Request
}

func (b *syncBackend) Execute(_ context.Context, req execution.Request, listener execution.CompletionListener) error {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	listener.OnCompletion(req, execution.Outcome{CommandID: req.CommandID, Success: true})
	return nil
}

type testEnv struct {
	handler http.Handler
	backend *syncBackend
	journal *monitor.Service
	gateway *execution.Gateway
}

func newTestEnv(t *testing.T, account int64) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	journal, err := monitor.NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	backend := &syncBackend{}
	gw := execution.NewGateway(backend, execution.Options{OCOQuantity: 3000, Journal: journal}, nil)
	if account > 0 {
		if err := gw.SetAccountID(account); err != nil {
			t.Fatalf("SetAccountID returned error: %v", err)
		}
	}

	positions := position.NewStatic([]config.PaperPosition{{Symbol: "EUR/USD", Side: "long", Quantity: 3000}})
	srv := newServer(gw, positions, journal, config.ServerConfig{AllowedOrigins: []string{"*"}}, nil)
	return &testEnv{handler: srv.handler(), backend: backend, journal: journal, gateway: gw}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_PlaceOrderAccepted(t *testing.T) {
	env := newTestEnv(t, 11)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol":      "EUR/USD",
		"side":        "BUY",
		"duration":    "day",
		"kind":        "limit",
		"quantity":    1000,
		"limit_price": 1.085,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp acceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CommandID != 1 {
		t.Errorf("expected command id 1, got %d", resp.CommandID)
	}
	if len(env.backend.requests) != 1 || env.backend.requests[0].AccountID != 11 {
		t.Errorf("unexpected backend requests: %+v", env.backend.requests)
	}
}

func TestServer_PlaceOrderRejected(t *testing.T) {
	env := newTestEnv(t, 11)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol":   "EUR/USD",
		"side":     "buy",
		"kind":     "limit",
		"quantity": 1000,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reason != execution.ReasonMissingLimitPrice {
		t.Errorf("unexpected reason: %q", resp.Reason)
	}
	if len(env.backend.requests) != 0 {
		t.Errorf("rejected intent reached the backend")
	}
}

func TestServer_AccountUnbound(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol": "EUR/USD", "side": "buy", "kind": "market", "quantity": 1,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestServer_BadBody(t *testing.T) {
	env := newTestEnv(t, 11)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{"unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServer_ModifyOrder(t *testing.T) {
	env := newTestEnv(t, 11)

	rec := env.do(t, http.MethodPut, "/api/v1/orders/991", map[string]interface{}{
		"symbol": "EUR/USD", "side": "sell", "duration": "gtc", "quantity": 500, "limit_price": 1.1,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	action, ok := env.backend.requests[0].Action.(execution.ModifyAction)
	if !ok || action.OrderID != "991" || action.Leg.Kind != execution.OrderKindLimit {
		t.Errorf("unexpected modify action: %+v", env.backend.requests[0].Action)
	}
}

func TestServer_OCO(t *testing.T) {
	env := newTestEnv(t, 11)

	rec := env.do(t, http.MethodPost, "/api/v1/oco", map[string]interface{}{
		"symbol": "EUR/USD", "stop_loss_price": 1.08, "take_profit_price": 1.09,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	group := env.backend.requests[0].Action.(execution.OCOGroupAction)
	if group.StopLoss.Side != execution.OrderSideSell || group.StopLoss.Quantity != 3000 {
		t.Errorf("unexpected group: %+v", group)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/oco", map[string]interface{}{
		"symbol": "GBP/USD", "stop_loss_price": 1.2, "take_profit_price": 1.3,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without a position, got %d", rec.Code)
	}
}

func TestServer_EventsAndStats(t *testing.T) {
	env := newTestEnv(t, 11)

	env.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol": "EUR/USD", "side": "buy", "kind": "market", "quantity": 1,
	})
	env.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol": "EUR/USD", "side": "buy", "kind": "market", "quantity": 1, "limit_price": 1,
	})

	rec := env.do(t, http.MethodGet, "/api/v1/events?command_id=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []monitor.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(records) != 2 || records[0].Type != execution.EventSucceeded || records[1].Type != execution.EventExecuting {
		t.Errorf("unexpected records: %+v", records)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/events?type=rejected", nil)
	records = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &records)
	if len(records) != 1 || records[0].Reason != execution.ReasonUnexpectedLimit {
		t.Errorf("unexpected rejected records: %+v", records)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/events?limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/stats", nil)
	var stats execution.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.LastCommandID != 1 || stats.Succeeded != 1 || stats.Rejected != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, 11)
	if rec := env.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
