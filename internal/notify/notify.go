// Package notify fans watcher and sync events out to in-process subscribers
// such as IPC watch streams.
package notify

import (
	"sync"
	"time"

	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

// Kind identifies an event
type Kind string

const (
	KindItemAdded Kind = "item_added"
	KindNewItems  Kind = "new_items"
	KindError     Kind = "error"
)

// Event is a notification raised by the core
type Event struct {
	Kind   Kind                   `json:"kind"`
	Source string                 `json:"source"`
	Time   time.Time              `json:"time"`
	Item   *types.ClipboardItem   `json:"item,omitempty"`
	Items  []*types.ClipboardItem `json:"items,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Publisher accepts events
type Publisher interface {
	Publish(Event)
}

// ItemAdded builds the event raised after a local capture
func ItemAdded(source string, item *types.ClipboardItem) Event {
	return Event{Kind: KindItemAdded, Source: source, Time: time.Now(), Item: item}
}

// NewItems builds the event raised when other devices wrote rows
func NewItems(source string, items []*types.ClipboardItem) Event {
	return Event{Kind: KindNewItems, Source: source, Time: time.Now(), Items: items}
}

// Failure builds the event raised for a failure caught at a poll boundary
func Failure(source string, err error) Event {
	return Event{Kind: KindError, Source: source, Time: time.Now(), Error: err.Error()}
}

// Hub delivers every published event to all current subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	history *EventHistory
	logger  *zap.Logger
}

// NewHub creates a hub keeping the last historySize events for replay
func NewHub(historySize int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:    make(map[int]chan Event),
		history: NewEventHistory(historySize),
		logger:  logger.With(zap.String("component", "notify")),
	}
}

func (h *Hub) Publish(e Event) {
	h.history.Add(e)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Debug("Subscriber is behind, event dropped",
				zap.Int("subscriber", id), zap.String("kind", string(e.Kind)))
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// to release it; the channel is closed afterwards.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n of the latest events, oldest first
func (h *Hub) Recent(n int) []Event {
	return h.history.GetLast(n)
}

// Subscribers returns the number of active subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// NoOpPublisher drops events. Used when nothing listens, e.g. one-shot CLI commands.
type NoOpPublisher struct {
	logger *zap.Logger
}

// NewNoOpPublisher creates a new NoOpPublisher instance
func NewNoOpPublisher(logger *zap.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

func (p *NoOpPublisher) Publish(e Event) {
	if p.logger != nil {
		p.logger.Debug("Event dropped (no-op publisher)", zap.String("kind", string(e.Kind)))
	}
}

// Multi publishes to several publishers in order
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
