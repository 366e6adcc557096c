package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-gateway/internal/execution"
)

func TestSimulator_CompletesAsynchronously(t *testing.T) {
	rejectSymbol := errors.New("venue rejected")
	sim := NewSimulator(SimulatorOptions{
		Latency: 5 * time.Millisecond,
		Fail: func(req execution.Request) error {
			if req.CommandID == 2 {
				return rejectSymbol
			}
			return nil
		},
	}, nil)
	listener := newChanListener()

	for id := execution.CommandID(1); id <= 2; id++ {
		if err := sim.Execute(context.Background(), placeRequest(id, execution.OrderKindMarket, 0), listener); err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
	}

	results := map[execution.CommandID]execution.Outcome{}
	for i := 0; i < 2; i++ {
		o := listener.wait(t)
		results[o.CommandID] = o
	}
	if !results[1].Success {
		t.Errorf("expected command 1 to succeed: %+v", results[1])
	}
	if results[2].Success || !errors.Is(results[2].Cause, rejectSymbol) {
		t.Errorf("expected command 2 to fail: %+v", results[2])
	}
}

func TestSimulator_RunStopsAccepting(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{}, nil)
	listener := newChanListener()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sim.Run(ctx)
		close(done)
	}()

	if err := sim.Execute(context.Background(), placeRequest(1, execution.OrderKindMarket, 0), listener); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	listener.wait(t)

	cancel()
	<-done

	if err := sim.Execute(context.Background(), placeRequest(2, execution.OrderKindMarket, 0), listener); !errors.Is(err, ErrBackendClosed) {
		t.Fatalf("expected ErrBackendClosed, got %v", err)
	}
}

func TestSimulator_RejectsMalformed(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{}, nil)
	if err := sim.Execute(context.Background(), execution.Request{}, newChanListener()); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected ErrMalformedRequest, got %v", err)
	}
}
