package notifier

import (
	"sync"

	"comanda/internal/domain"
)

// Subscription is one staff connection's view of a branch event stream.
// Events arrive on C until Unsubscribe; there is no replay for late joiners.
type Subscription struct {
	BranchID int64
	C        chan domain.Event

	done chan struct{}
	once sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub fans events out to the subscriptions of one branch. Isolation is
// structural: subscriptions are keyed by branch id and a publish only ever
// walks its own branch's set.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(branchID int64) *Subscription {
	s := &Subscription{
		BranchID: branchID,
		C:        make(chan domain.Event, 16),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	set, ok := h.subs[branchID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[branchID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[s.BranchID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.BranchID)
		}
	}
	h.mu.Unlock()
	s.close()
}

// Publish delivers ev to every subscription of branchID present right now.
// Delivery blocks until the subscriber takes the event or unsubscribes, so a
// live subscriber is never silently skipped; the buffer absorbs bursts.
func (h *Hub) Publish(branchID int64, ev domain.Event) {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[branchID]))
	for s := range h.subs[branchID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.C <- ev:
		case <-s.done:
		}
	}
}

// Subscribers reports the live subscription count for a branch.
func (h *Hub) Subscribers(branchID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[branchID])
}
