package events

import (
	"context"
	"testing"

	"github.com/product-estimator/estimator/internal/estimate"
)

type scriptedWatcher []string

func (w scriptedWatcher) Watch(ctx context.Context, onChange func(key string)) error {
	for _, key := range w {
		onChange(key)
	}
	return nil
}

func TestStorageBridgeRepublishesChanges(t *testing.T) {
	store := estimate.NewStore(estimate.StoreOptions{})
	store.UpdateCustomerDetails(estimate.CustomerDetails{Name: "Ada", Email: "ada@example.com", Postcode: "2000"})
	bus := NewBus()
	events, cancel := bus.Subscribe(8)
	defer cancel()

	reloads := 0
	bridge := &StorageBridge{Store: store, Bus: bus, OnDataChange: func() { reloads++ }}
	watcher := scriptedWatcher{estimate.DefaultDataKey, "unrelated", estimate.DefaultCustomerKey}
	if err := bridge.Run(context.Background(), watcher); err != nil {
		t.Fatalf("run: %v", err)
	}

	first := <-events
	if first.Type != TypeStorageChanged || reloads != 1 {
		t.Fatalf("expected storage change and one reload, got %+v reloads=%d", first, reloads)
	}
	second := <-events
	details, ok := second.Payload.(estimate.CustomerDetails)
	if second.Type != TypeCustomerDetailsUpdated || !ok || details.Email != "ada@example.com" {
		t.Fatalf("expected customer details event, got %+v", second)
	}
	if len(events) != 0 {
		t.Fatalf("expected unrelated keys ignored")
	}
}
