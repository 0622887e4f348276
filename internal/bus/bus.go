package bus

import (
	"sync"

	"github.com/jkaberg/iotkit-logger/internal/sensors"
)

// Bus provides fan-out pub/sub semantics for *sensors.Report* messages.
// Each Subscribe call gets its own channel that receives every future
// publication. Past messages are not replayed. The implementation is safe for
// concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan *sensors.Report
	closed      bool
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a read-only channel that will receive future reports.
// buffer is the channel capacity; lossless consumers such as the log sink
// should ask for a generous one.
func (b *Bus) Subscribe(buffer int) <-chan *sensors.Report {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *sensors.Report, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers the report to all subscribers in a best-effort, non-blocking
// way. It returns how many subscribers had a full buffer and missed it.
func (b *Bus) Publish(r *sensors.Report) (missed int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- r:
		default:
			// Subscriber is currently busy; skip this report instead of dropping the
			// subscriber entirely.
			missed++
		}
	}
	return missed
}

// Unsubscribe removes ch and closes it.
func (b *Bus) Unsubscribe(ch <-chan *sensors.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			// remove without preserving order
			b.subscribers[i] = b.subscribers[len(b.subscribers)-1]
			b.subscribers = b.subscribers[:len(b.subscribers)-1]
			close(sub)
			return
		}
	}
}

// Close closes every subscriber channel so consumers can drain and exit.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
