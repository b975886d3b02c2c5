// Package events carries payment status changes to the rest of the
// system. The bus is an explicit observer list, not process-global state,
// so tests can substitute a capturing subscriber.
package events

import (
	"context"
	"sync"

	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/fx"
)

type Subscriber func(ctx context.Context, change paymentdomain.StatusChange)

type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers the change to every subscriber synchronously, in
// subscription order.
func (b *Bus) Publish(ctx context.Context, change paymentdomain.StatusChange) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ctx, change)
	}
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
)
