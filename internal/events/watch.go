package events

import (
	"context"

	"github.com/product-estimator/estimator/internal/estimate"
)

// Watcher reports changed storage keys until ctx is done.
// *estimate.FileBackend satisfies it.
type Watcher interface {
	Watch(ctx context.Context, onChange func(key string)) error
}

// StorageBridge turns record files changed by another process into bus
// events. A customer-details change is republished with the stored details
// so every listener sees the same payload as for a local update.
type StorageBridge struct {
	Store       *estimate.Store
	Bus         *Bus
	DataKey     string
	CustomerKey string
	// OnDataChange runs after the estimate record changed on disk.
	OnDataChange func()
}

func (b *StorageBridge) Run(ctx context.Context, w Watcher) error {
	dataKey := b.DataKey
	if dataKey == "" {
		dataKey = estimate.DefaultDataKey
	}
	customerKey := b.CustomerKey
	if customerKey == "" {
		customerKey = estimate.DefaultCustomerKey
	}
	return w.Watch(ctx, func(key string) {
		switch key {
		case dataKey:
			b.Bus.Publish(TypeStorageChanged, map[string]string{"key": key})
			if b.OnDataChange != nil {
				b.OnDataChange()
			}
		case customerKey:
			details, _ := b.Store.GetCustomerDetails()
			b.Bus.Publish(TypeCustomerDetailsUpdated, details)
		}
	})
}
