package vision

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProvider struct {
	delay          time.Duration
	classification *Classification
	err            error
	calls          atomic.Int32
	cancelled      atomic.Bool
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GetUsage() Usage { return Usage{} }

func (f *fakeProvider) Classify(ctx context.Context, imageData []byte, catalog []string) (*Classification, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.cancelled.Store(true)
			return nil, ctx.Err()
		}
	}
	return f.classification, f.err
}

func TestAdapter_ReturnsClassification(t *testing.T) {
	want := &Classification{Analysis: "ok", Provider: "fake"}
	adapter := NewAdapter(&fakeProvider{classification: want}, []string{"Nordid"}, time.Second, zap.NewNop())

	if got := adapter.Classify(context.Background(), []byte("img")); got != want {
		t.Errorf("expected classification, got %+v", got)
	}
}

func TestAdapter_ErrorBecomesNil(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	provider := &fakeProvider{err: errors.New("API error (status 500)")}
	adapter := NewAdapter(provider, nil, time.Second, zap.New(core))

	if got := adapter.Classify(context.Background(), []byte("img")); got != nil {
		t.Errorf("expected nil on provider error, got %+v", got)
	}
	if observed.FilterMessage("vision classification failed").Len() != 1 {
		t.Error("expected a warning for the failed classification")
	}
}

func TestAdapter_TimeoutBecomesNilWithoutCancelling(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	provider := &fakeProvider{delay: 200 * time.Millisecond, classification: &Classification{}}
	adapter := NewAdapter(provider, nil, 20*time.Millisecond, zap.New(core))

	start := time.Now()
	got := adapter.Classify(context.Background(), []byte("img"))
	if got != nil {
		t.Errorf("expected nil on timeout, got %+v", got)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("adapter waited %v, expected to stop at the timeout", elapsed)
	}
	if observed.FilterMessage("vision classification timed out").Len() != 1 {
		t.Error("expected a timeout warning")
	}

	time.Sleep(250 * time.Millisecond)
	if provider.cancelled.Load() {
		t.Error("expected the in-flight call to run to completion")
	}
}

func TestAdapter_RequestCancellation(t *testing.T) {
	provider := &fakeProvider{delay: time.Second}
	adapter := NewAdapter(provider, nil, 5*time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if got := adapter.Classify(ctx, []byte("img")); got != nil {
		t.Errorf("expected nil on cancellation, got %+v", got)
	}

	deadline := time.Now().Add(time.Second)
	for !provider.cancelled.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !provider.cancelled.Load() {
		t.Error("expected the provider call to observe the cancelled context")
	}
}

func TestAdapter_Disabled(t *testing.T) {
	adapter := NewAdapter(nil, nil, time.Second, nil)
	if adapter.Enabled() {
		t.Error("expected disabled adapter")
	}
	if adapter.Classify(context.Background(), []byte("img")) != nil {
		t.Error("expected nil from disabled adapter")
	}

	var nilAdapter *Adapter
	if nilAdapter.Enabled() {
		t.Error("expected nil adapter to be disabled")
	}
}
