// Package realtime produces notification events. There is no real push
// channel in this deployment, so the ticker source synthesizes plausible
// marketplace activity at a fixed period; swapping in a genuine
// server-push implementation only means providing another
// port.NotificationSource.
package realtime

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"github.com/google/uuid"
)

// templates rotate through the event kinds a marketplace backend would
// push: matching listings, transaction decisions, carrier movement.
var templates = []struct {
	kind     string
	priority string
	title    string
	message  string
}{
	{domain.NotifyNewListing, "normal", "New surplus listing", "A listing matching your interests was just published"},
	{domain.NotifyTransaction, "high", "Transaction update", "One of your transactions changed status"},
	{domain.NotifyDeliveryUpdate, "normal", "Delivery update", "A shipment linked to your account is moving"},
	{domain.NotifyNewListing, "low", "Category activity", "New items appeared in a category you follow"},
}

// TickerSource emits one synthetic notification per interval to every
// subscriber. Synthetic ids are negative so they can never collide with
// upstream-assigned ones.
type TickerSource struct {
	interval time.Duration

	mu   sync.Mutex
	rnd  *rand.Rand
	next atomic.Int64
}

// NewTickerSource creates a source with the given period.
func NewTickerSource(interval time.Duration) *TickerSource {
	return &TickerSource{
		interval: interval,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Subscribe implements port.NotificationSource. The channel closes when
// ctx ends; the ticker lives exactly as long as the subscription.
func (s *TickerSource) Subscribe(ctx context.Context) <-chan domain.Notification {
	ch := make(chan domain.Notification, 16)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- s.synthesize():
				default:
					// Drop when the consumer is slow to avoid blocking the timer.
				}
			}
		}
	}()

	return ch
}

func (s *TickerSource) synthesize() domain.Notification {
	s.mu.Lock()
	tpl := templates[s.rnd.Intn(len(templates))]
	s.mu.Unlock()

	return domain.Notification{
		ID:        -s.next.Add(1),
		Type:      tpl.kind,
		Priority:  tpl.priority,
		Title:     tpl.title,
		Message:   fmt.Sprintf("%s (ref %s)", tpl.message, uuid.NewString()[:8]),
		CreatedAt: time.Now(),
	}
}
