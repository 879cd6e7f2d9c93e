package app

import (
	"sync"

	"identity-map-service/internal/domain"
)

// feed fans out global-average snapshots to subscribers after each fully
// applied submission.
type feed struct {
	mu          sync.Mutex
	subscribers map[chan domain.AverageSnapshot]struct{}
}

func newFeed() *feed {
	return &feed{subscribers: make(map[chan domain.AverageSnapshot]struct{})}
}

func (f *feed) subscribe(initial domain.AverageSnapshot) (<-chan domain.AverageSnapshot, func()) {
	ch := make(chan domain.AverageSnapshot, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	ch <- initial

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *feed) publish(snap domain.AverageSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow client never blocks publishers.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
