package notify

import (
	"container/ring"
	"sync"
)

// EventHistory keeps the most recent events in a fixed-size ring
type EventHistory struct {
	history *ring.Ring
	mu      sync.Mutex
	size    int
}

func NewEventHistory(size int) *EventHistory {
	if size <= 0 {
		size = 1
	}
	return &EventHistory{
		history: ring.New(size),
		size:    size,
	}
}

func (eh *EventHistory) Add(e Event) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.history.Value = e
	eh.history = eh.history.Next()
}

// GetLast returns up to n events, oldest first
func (eh *EventHistory) GetLast(n int) []Event {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	if n > eh.size {
		n = eh.size
	}
	if n <= 0 {
		return nil
	}

	// the current position is the oldest slot once the ring has wrapped
	all := make([]Event, 0, eh.size)
	eh.history.Do(func(v interface{}) {
		if v != nil {
			all = append(all, v.(Event))
		}
	})
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
