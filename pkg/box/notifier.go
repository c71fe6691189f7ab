package box

import (
	"sync"

	"boxdb/pkg/boxerr"
	"boxdb/pkg/boxmetrics"
)

// ChangeEvent describes one mutation a box made to a key.
type ChangeEvent struct {
	Key     any
	Value   any
	Deleted bool
}

type subscription struct {
	id     uint64
	key    any
	anyKey bool
	ch     chan ChangeEvent
}

// notifier is a broadcast pub/sub of key changes. A Put or Delete on the
// box fans the event out to every matching subscriber without blocking
// the writer: each subscriber has its own buffered channel, and a full
// channel simply drops the event for that subscriber rather than stall
// the write path.
type notifier struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*subscription
	closed  bool
	metrics *boxmetrics.Metrics
	boxName string
}

func newNotifier(metrics *boxmetrics.Metrics, boxName string) *notifier {
	return &notifier{subs: make(map[uint64]*subscription), metrics: metrics, boxName: boxName}
}

// reportWatchers updates the watchers-in-flight gauge. Callers must hold
// n.mu.
func (n *notifier) reportWatchers() {
	if n.metrics != nil {
		n.metrics.SetWatchersInFlight(n.boxName, len(n.subs))
	}
}

// watchHandle is returned by Watch; Close stops delivery and releases
// the subscription's channel.
type watchHandle struct {
	n  *notifier
	id uint64
	ch chan ChangeEvent
}

// Events returns the channel events are delivered on.
func (h *watchHandle) Events() <-chan ChangeEvent { return h.ch }

// Close unregisters the subscription. Safe to call more than once.
func (h *watchHandle) Close() {
	h.n.mu.Lock()
	defer h.n.mu.Unlock()
	if _, ok := h.n.subs[h.id]; ok {
		delete(h.n.subs, h.id)
		close(h.ch)
		h.n.reportWatchers()
	}
}

// watch subscribes to changes. If key is non-nil, only changes to that
// exact key are delivered; otherwise every change in the box is. Fails
// with boxerr.ErrBoxClosed once the notifier has been closed.
func (n *notifier) watch(key any) (*watchHandle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, boxerr.ErrBoxClosed
	}

	id := n.nextID
	n.nextID++
	ch := make(chan ChangeEvent, 64)
	n.subs[id] = &subscription{id: id, key: key, anyKey: key == nil, ch: ch}
	n.reportWatchers()
	return &watchHandle{n: n, id: id, ch: ch}, nil
}

func (n *notifier) publish(event ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, sub := range n.subs {
		if !sub.anyKey && sub.key != event.Key {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Slow subscriber: drop rather than block the writer.
		}
	}
}

// close unregisters every subscriber and closes their channels. Further
// publish calls become no-ops.
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		close(sub.ch)
		delete(n.subs, id)
	}
	n.reportWatchers()
}
