package events

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestPublish_MatchOrder(t *testing.T) {
	bus := NewBus(testLogger())

	var mu sync.Mutex
	var order []string
	record := func(tag string) Handler {
		return func(ctx context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, tag)
			return nil
		}
	}

	bus.Subscribe("*", record("global"))
	bus.Subscribe("module.*", record("group"))
	bus.Subscribe(ModuleMaterialized, record("exact1"))
	bus.Subscribe(ModuleMaterialized, record("exact2"))
	bus.Subscribe(ModuleFailed, record("other"))
	bus.Subscribe("config.*", record("config"))

	bus.Publish(context.Background(), Event{Name: ModuleMaterialized, Module: "stock"})

	want := []string{"exact1", "exact2", "group", "global"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("handler order = %v, want %v", order, want)
	}
}

func TestPublish_SetsTimestamp(t *testing.T) {
	bus := NewBus(testLogger())

	var got Event
	bus.Subscribe(ModuleDeclined, func(ctx context.Context, e Event) error {
		got = e
		return nil
	})

	bus.Publish(context.Background(), Event{Name: ModuleDeclined, Module: "nosuch"})
	if got.At.IsZero() {
		t.Error("At not set on published event")
	}

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bus.Publish(context.Background(), Event{Name: ModuleDeclined, At: fixed})
	if !got.At.Equal(fixed) {
		t.Errorf("At = %v, want caller-provided %v", got.At, fixed)
	}
}

func TestPublish_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(testLogger())

	var calls int32
	bus.Subscribe(ModuleFailed, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	bus.Subscribe(ModuleFailed, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.Publish(context.Background(), Event{Name: ModuleFailed})
	if calls != 2 {
		t.Errorf("handlers called %d times, want 2", calls)
	}
}

func TestPublish_HandlerMayPublish(t *testing.T) {
	bus := NewBus(testLogger())

	var got []string
	bus.Subscribe(ModuleLocated, func(ctx context.Context, e Event) error {
		bus.Publish(ctx, Event{Name: ModuleMaterialized, Module: e.Module})
		return nil
	})
	bus.Subscribe("module.*", func(ctx context.Context, e Event) error {
		got = append(got, e.Name)
		return nil
	})

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), Event{Name: ModuleLocated, Module: "stock"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested Publish deadlocked")
	}

	want := []string{ModuleMaterialized, ModuleLocated}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	bus := NewBus(testLogger())

	var calls int
	unsubscribe := bus.Subscribe(ModuleMaterialized, func(ctx context.Context, e Event) error {
		calls++
		return nil
	})

	if !bus.HasSubscribers(ModuleMaterialized) {
		t.Error("HasSubscribers() = false after Subscribe")
	}

	unsubscribe()
	bus.Publish(context.Background(), Event{Name: ModuleMaterialized})

	if calls != 0 {
		t.Errorf("handler called %d times after unsubscribe", calls)
	}
	if bus.HasSubscribers(ModuleMaterialized) {
		t.Error("HasSubscribers() = true after unsubscribe")
	}
	if len(bus.handlers) != 0 {
		t.Errorf("handlers map not cleaned up: %v", bus.handlers)
	}

	// Second call is a no-op.
	unsubscribe()
}

func TestHasSubscribers_Wildcards(t *testing.T) {
	tests := []struct {
		pattern string
		event   string
		want    bool
	}{
		{"module.failed", "module.failed", true},
		{"module.failed", "module.located", false},
		{"module.*", "module.located", true},
		{"module.*", "config.reloaded", false},
		{"*", "config.reloaded", true},
		{"*", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.event, func(t *testing.T) {
			bus := NewBus(testLogger())
			bus.Subscribe(tt.pattern, func(ctx context.Context, e Event) error { return nil })
			if got := bus.HasSubscribers(tt.event); got != tt.want {
				t.Errorf("HasSubscribers(%q) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	bus := NewBus(testLogger())
	h := NewHistory(3)
	detach := h.Attach(bus)

	if got := h.Recent(); len(got) != 0 {
		t.Errorf("Recent() on empty history = %v", got)
	}

	for _, m := range []string{"a", "b"} {
		bus.Publish(context.Background(), Event{Name: ModuleMaterialized, Module: m})
	}
	if got := modules(h.Recent()); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Recent() = %v, want [a b]", got)
	}

	for _, m := range []string{"c", "d", "e"} {
		bus.Publish(context.Background(), Event{Name: ModuleMaterialized, Module: m})
	}
	if got := modules(h.Recent()); !reflect.DeepEqual(got, []string{"c", "d", "e"}) {
		t.Errorf("Recent() after wrap = %v, want [c d e]", got)
	}

	detach()
	bus.Publish(context.Background(), Event{Name: ModuleMaterialized, Module: "f"})
	if got := modules(h.Recent()); got[len(got)-1] != "e" {
		t.Errorf("history recorded after detach: %v", got)
	}
}

func modules(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Module
	}
	return out
}
