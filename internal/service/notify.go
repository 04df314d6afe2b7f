package service

import (
	"context"
	"sync"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/observability"
	"github.com/circulo/surplus-gateway-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var notifyTracer = otel.Tracer("service/notify")

// Feed is one user's notification list. Newest entry is always at the
// head; read-state changes never reorder. The unread counter is kept in
// lockstep with the list under one mutex.
type Feed struct {
	mu     sync.RWMutex
	items  []domain.Notification
	unread int
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Replace swaps the feed for an upstream-fetched list and recounts unread.
func (f *Feed) Replace(items []domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append([]domain.Notification(nil), items...)
	f.unread = 0
	for _, n := range f.items {
		if !n.Read {
			f.unread++
		}
	}
}

// Push prepends a notification and bumps the unread counter when it
// arrives unread.
func (f *Feed) Push(n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append([]domain.Notification{n}, f.items...)
	if !n.Read {
		f.unread++
	}
}

// MarkRead flags one notification as read. Idempotent: an unknown id or an
// already-read entry is a no-op, never an error.
func (f *Feed) MarkRead(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].ID == id {
			if !f.items[i].Read {
				f.items[i].Read = true
				f.unread--
			}
			return
		}
	}
}

// MarkAllRead flags the whole feed as read. Idempotent.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		f.items[i].Read = true
	}
	f.unread = 0
}

// Delete removes a notification. The unread counter drops only when the
// removed entry was unread. Returns whether the id was present.
func (f *Feed) Delete(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].ID == id {
			if !f.items[i].Read {
				f.unread--
			}
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the feed, newest first.
func (f *Feed) Snapshot() []domain.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.Notification(nil), f.items...)
}

// UnreadCount returns the current unread counter.
func (f *Feed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.unread
}

// Dispatcher routes asynchronous events into per-user feeds and keeps the
// read state reconciled with the upstream. Where the events come from is
// behind port.NotificationSource: a ticker generator today, a server
// push channel in production.
type Dispatcher struct {
	api     port.NotificationAPI
	source  port.NotificationSource
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.RWMutex
	feeds map[int64]*Feed

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates the dispatcher. Call Start to begin consuming the
// source.
func NewDispatcher(api port.NotificationAPI, source port.NotificationSource, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		api:     api,
		source:  source,
		metrics: metrics,
		logger:  logger,
		feeds:   make(map[int64]*Feed),
	}
}

// Feed returns a user's feed, creating it lazily.
func (d *Dispatcher) Feed(userID int64) *Feed {
	d.mu.RLock()
	f, ok := d.feeds[userID]
	d.mu.RUnlock()
	if ok {
		return f
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok = d.feeds[userID]; ok {
		return f
	}
	f = NewFeed()
	d.feeds[userID] = f
	return f
}

// Start subscribes to the event source. Events with a user id go to that
// feed; events without one fan out to every active feed.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	events := d.source.Subscribe(ctx)
	go func() {
		defer close(d.done)
		for n := range events {
			d.deliver(n)
		}
	}()
}

// Stop ends the subscription and waits for in-flight delivery to finish.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

func (d *Dispatcher) deliver(n domain.Notification) {
	d.metrics.IncrNotification(n.Type)

	if n.UserID != 0 {
		d.Feed(n.UserID).Push(n)
		return
	}

	d.mu.RLock()
	feeds := make([]*Feed, 0, len(d.feeds))
	ids := make([]int64, 0, len(d.feeds))
	for id, f := range d.feeds {
		feeds = append(feeds, f)
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	for i, f := range feeds {
		routed := n
		routed.UserID = ids[i]
		f.Push(routed)
	}
}

// Sync seeds a user's feed from the upstream at session start and aligns
// the unread counter with the server's.
func (d *Dispatcher) Sync(ctx context.Context, token string, userID int64) error {
	ctx, span := notifyTracer.Start(ctx, "Notify.Sync")
	defer span.End()

	items, err := d.api.ListNotifications(ctx, token)
	if err != nil {
		d.metrics.IncrUpstreamError("notifications")
		return err
	}
	d.Feed(userID).Replace(items)

	if count, err := d.api.UnreadCount(ctx, token); err == nil {
		local := d.Feed(userID).UnreadCount()
		if count != local {
			d.logger.Debug("notify: unread counter drift",
				zap.Int("upstream", count),
				zap.Int("local", local),
			)
		}
	}
	return nil
}

// MarkRead flags one notification read locally and upstream. Re-reading an
// already-read entry short-circuits to a no-op.
func (d *Dispatcher) MarkRead(ctx context.Context, token string, userID, id int64) error {
	ctx, span := notifyTracer.Start(ctx, "Notify.MarkRead")
	defer span.End()

	feed := d.Feed(userID)
	for _, n := range feed.Snapshot() {
		if n.ID == id {
			if n.Read {
				return nil
			}
			break
		}
	}

	// Synthetic ids are local-only; the upstream never saw them.
	if id > 0 {
		if err := d.api.MarkNotificationRead(ctx, token, id); err != nil {
			d.metrics.IncrUpstreamError("notifications")
			return err
		}
	}
	feed.MarkRead(id)
	return nil
}

// MarkAllRead flags the whole feed read locally and upstream. Idempotent.
func (d *Dispatcher) MarkAllRead(ctx context.Context, token string, userID int64) error {
	ctx, span := notifyTracer.Start(ctx, "Notify.MarkAllRead")
	defer span.End()

	feed := d.Feed(userID)
	if feed.UnreadCount() == 0 {
		return nil
	}

	if err := d.api.MarkAllNotificationsRead(ctx, token); err != nil {
		d.metrics.IncrUpstreamError("notifications")
		return err
	}
	feed.MarkAllRead()
	return nil
}

// Delete removes one notification locally and upstream.
func (d *Dispatcher) Delete(ctx context.Context, token string, userID, id int64) error {
	ctx, span := notifyTracer.Start(ctx, "Notify.Delete")
	defer span.End()

	if id > 0 {
		if err := d.api.DeleteNotification(ctx, token, id); err != nil {
			d.metrics.IncrUpstreamError("notifications")
			return err
		}
	}
	if !d.Feed(userID).Delete(id) {
		return &domain.ErrNotFound{Resource: "notification", ID: id}
	}
	return nil
}

// DropFeed discards a user's feed. Called on logout so stale timers can
// never write into a dead session's feed.
func (d *Dispatcher) DropFeed(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.feeds, userID)
}
