package notify

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/berrythewa/clipsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToAllSubscribers(t *testing.T) {
	h := NewHub(10, nil)

	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelB()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(ItemAdded("watcher", &types.ClipboardItem{ID: 1}))

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, KindItemAdded, e.Kind)
			assert.Equal(t, int64(1), e.Item.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHubNeverBlocks(t *testing.T) {
	h := NewHub(10, nil)
	ch, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Failure("sync", errors.New("boom")))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestEventHistory(t *testing.T) {
	h := NewEventHistory(3)
	assert.Empty(t, h.GetLast(3))

	for i := 1; i <= 5; i++ {
		h.Add(Event{Source: fmt.Sprint(i)})
	}

	got := h.GetLast(10)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "4", "5"}, []string{got[0].Source, got[1].Source, got[2].Source})

	got = h.GetLast(2)
	assert.Equal(t, []string{"4", "5"}, []string{got[0].Source, got[1].Source})
}

func TestMultiPublisher(t *testing.T) {
	h1, h2 := NewHub(2, nil), NewHub(2, nil)
	Multi{h1, nil, h2, NewNoOpPublisher(nil)}.Publish(NewItems("sync", nil))
	assert.Len(t, h1.Recent(5), 1)
	assert.Len(t, h2.Recent(5), 1)
}
