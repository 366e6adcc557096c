package execution

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockBackend 同步记录请求，可选择立即回调结果或返回提交错误。
type mockBackend struct {
	mu       sync.Mutex
	requests []Request
	err      error
	panicMsg string
	complete *Outcome
}

func (m *mockBackend) Execute(_ context.Context, req Request, listener CompletionListener) error {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.complete != nil {
		outcome := *m.complete
		outcome.CommandID = req.CommandID
		listener.OnCompletion(req, outcome)
	}
	return nil
}

type recordingJournal struct {
	mu     sync.Mutex
	events []Event
}

func (j *recordingJournal) RecordEvent(_ context.Context, event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *recordingJournal) types() []EventType {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]EventType, 0, len(j.events))
	for _, e := range j.events {
		out = append(out, e.Type)
	}
	return out
}

func newObservedGateway(t *testing.T, backend Backend, opts Options) (*Gateway, *observer.ObservedLogs, *recordingJournal) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	journal := &recordingJournal{}
	opts.Journal = journal
	gw := NewGateway(backend, opts, zap.New(core))
	if err := gw.SetAccountID(1001); err != nil {
		t.Fatalf("SetAccountID returned error: %v", err)
	}
	return gw, logs, journal
}

func commandIDs(entries []observer.LoggedEntry) []uint64 {
	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if v, ok := e.ContextMap()["command_id"].(uint64); ok {
			ids = append(ids, v)
		}
	}
	return ids
}

func TestGateway_ScenarioA_LimitPlaceSucceeds(t *testing.T) {
	backend := &mockBackend{complete: &Outcome{Success: true}}
	gw, logs, journal := newObservedGateway(t, backend, Options{})

	id, err := gw.PlaceOrder(context.Background(), PlaceIntent{
		Instrument: eurusd(),
		Side:       OrderSideBuy,
		Duration:   DurationDay,
		Kind:       OrderKindLimit,
		Quantity:   1000,
		LimitPrice: 1.0850,
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected command id 1, got %d", id)
	}

	if len(backend.requests) != 1 {
		t.Fatalf("expected one submitted request, got %d", len(backend.requests))
	}
	leg := backend.requests[0].Action.(PlaceAction).Leg
	if leg.Kind != OrderKindLimit || leg.LimitPrice != 1.0850 || leg.Quantity != 1000 {
		t.Errorf("unexpected leg: %+v", leg)
	}
	if backend.requests[0].AccountID != 1001 {
		t.Errorf("expected account 1001, got %d", backend.requests[0].AccountID)
	}

	executing := logs.FilterMessage("Executing command").All()
	if got := commandIDs(executing); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected one executing entry for id 1, got %v", got)
	}
	success := logs.FilterMessage("Command is successfully executed").All()
	if got := commandIDs(success); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected one success entry for id 1, got %v", got)
	}
	if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
		t.Errorf("expected no error entries, got %d", n)
	}

	want := []EventType{EventExecuting, EventSucceeded}
	got := journal.types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("unexpected journal events: %v", got)
	}
}

func TestGateway_ScenarioB_RejectedLimitDoesNotSubmit(t *testing.T) {
	backend := &mockBackend{}
	gw, logs, journal := newObservedGateway(t, backend, Options{})

	_, err := gw.PlaceOrder(context.Background(), PlaceIntent{
		Instrument: eurusd(),
		Side:       OrderSideBuy,
		Duration:   DurationDay,
		Kind:       OrderKindLimit,
		Quantity:   1000,
	})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(backend.requests) != 0 {
		t.Fatalf("rejected intent reached the backend")
	}
	if logs.FilterMessage("Executing command").Len() != 0 {
		t.Errorf("rejected intent logged an executing entry")
	}
	if gw.Stats().LastCommandID != 0 {
		t.Errorf("rejected intent consumed a command id")
	}

	rejected := logs.FilterMessage("Command rejected").All()
	if len(rejected) != 1 || rejected[0].ContextMap()["reason"] != ReasonMissingLimitPrice {
		t.Errorf("expected one rejection entry with reason, got %+v", rejected)
	}
	if got := journal.types(); len(got) != 1 || got[0] != EventRejected {
		t.Errorf("unexpected journal events: %v", got)
	}
	if gw.Stats().Rejected != 1 {
		t.Errorf("expected rejected=1, got %d", gw.Stats().Rejected)
	}
}

func TestGateway_SilentRejections(t *testing.T) {
	gw, logs, journal := newObservedGateway(t, &mockBackend{}, Options{SilentRejections: true})

	_, err := gw.OCOOrder(context.Background(), OCOIntent{StopLossPrice: 1, TakeProfitPrice: 2})
	if RejectionReason(err) != ReasonMissingPosition {
		t.Fatalf("expected missing position rejection, got %v", err)
	}
	if logs.Len() != 0 || len(journal.types()) != 0 {
		t.Errorf("silent rejection still produced output")
	}
}

func TestGateway_ScenarioC_OCOGroup(t *testing.T) {
	backend := &mockBackend{}
	gw, _, _ := newObservedGateway(t, backend, Options{OCOQuantity: 3000})

	pos := &Position{Instrument: eurusd(), Side: OrderSideBuy, Quantity: 3000}
	if _, err := gw.OCOOrder(context.Background(), OCOIntent{Position: pos, StopLossPrice: 1.0800, TakeProfitPrice: 1.0900}); err != nil {
		t.Fatalf("OCOOrder returned error: %v", err)
	}

	group := backend.requests[0].Action.(OCOGroupAction)
	if group.StopLoss.Side != OrderSideSell || group.StopLoss.StopPrice != 1.0800 || group.StopLoss.Quantity != 3000 {
		t.Errorf("unexpected stop leg: %+v", group.StopLoss)
	}
	if group.TakeProfit.Side != OrderSideSell || group.TakeProfit.LimitPrice != 1.0900 || group.TakeProfit.Quantity != 3000 {
		t.Errorf("unexpected take profit leg: %+v", group.TakeProfit)
	}
}

func TestGateway_SubmitFailureIsSwallowed(t *testing.T) {
	backend := &mockBackend{err: errors.New("connection refused")}
	gw, logs, journal := newObservedGateway(t, backend, Options{})

	id, err := gw.PlaceOrder(context.Background(), PlaceIntent{Instrument: eurusd(), Side: OrderSideBuy, Kind: OrderKindMarket, Quantity: 1})
	if err != nil {
		t.Fatalf("submission failure must not reach the caller: %v", err)
	}

	failures := logs.FilterMessage("Failed to submit command").All()
	if len(failures) != 1 {
		t.Fatalf("expected one submit failure entry, got %d", len(failures))
	}
	if got := commandIDs(failures); got[0] != uint64(id) {
		t.Errorf("expected failure keyed by %d, got %v", id, got)
	}
	if failures[0].ContextMap()["error"] != "connection refused" {
		t.Errorf("expected cause in entry, got %v", failures[0].ContextMap())
	}
	if got := journal.types(); len(got) != 2 || got[0] != EventExecuting || got[1] != EventSubmitFailed {
		t.Errorf("unexpected journal events: %v", got)
	}
	if gw.Stats().SubmitFailed != 1 {
		t.Errorf("expected submit_failed=1")
	}
}

func TestGateway_SubmitPanicIsRecovered(t *testing.T) {
	backend := &mockBackend{panicMsg: "boom"}
	gw, logs, _ := newObservedGateway(t, backend, Options{})

	if _, err := gw.PlaceOrder(context.Background(), PlaceIntent{Instrument: eurusd(), Side: OrderSideBuy, Kind: OrderKindMarket, Quantity: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs.FilterMessage("Failed to submit command").Len() != 1 {
		t.Errorf("expected panic to be logged as submit failure")
	}
}

func TestGateway_AccountBinding(t *testing.T) {
	gw := NewGateway(&mockBackend{}, Options{}, nil)

	if _, err := gw.PlaceOrder(context.Background(), PlaceIntent{Instrument: eurusd(), Side: OrderSideBuy, Kind: OrderKindMarket, Quantity: 1}); !errors.Is(err, ErrAccountUnset) {
		t.Fatalf("expected ErrAccountUnset, got %v", err)
	}
	if gw.Stats().LastCommandID != 0 {
		t.Errorf("unbound gateway consumed an id")
	}
	if err := gw.SetAccountID(0); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("expected ErrInvalidAccount, got %v", err)
	}
	if err := gw.SetAccountID(5); err != nil {
		t.Fatalf("SetAccountID returned error: %v", err)
	}
	if err := gw.SetAccountID(5); err != nil {
		t.Errorf("rebinding the same account should succeed: %v", err)
	}
	if err := gw.SetAccountID(6); !errors.Is(err, ErrAccountBound) {
		t.Errorf("expected ErrAccountBound, got %v", err)
	}
	if gw.AccountID() != 5 {
		t.Errorf("expected account 5, got %d", gw.AccountID())
	}
}

func TestGateway_ConcurrentPlaceYieldsDistinctIDs(t *testing.T) {
	const callers = 50

	backend := &mockBackend{complete: &Outcome{Success: true}}
	gw, logs, _ := newObservedGateway(t, backend, Options{StartCommandID: 100})

	var wg sync.WaitGroup
	ids := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := gw.PlaceOrder(context.Background(), PlaceIntent{Instrument: eurusd(), Side: OrderSideBuy, Kind: OrderKindMarket, Quantity: 1})
			if err != nil {
				t.Errorf("PlaceOrder returned error: %v", err)
				return
			}
			ids[i] = int(id)
		}(i)
	}
	wg.Wait()

	sort.Ints(ids)
	for i, id := range ids {
		if id != 100+i {
			t.Fatalf("expected contiguous ids from 100, position %d has %d", i, id)
		}
	}
	if logs.FilterMessage("Command is successfully executed").Len() != callers {
		t.Errorf("expected %d success entries", callers)
	}
	if stats := gw.Stats(); stats.Succeeded != callers || stats.LastCommandID != 100+callers-1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
