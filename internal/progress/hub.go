// Package progress fans live scan events out to subscribers. Delivery is
// lossy by contract: Publish never blocks, and a subscriber that falls behind
// silently misses events. Consumers reconcile by polling scan status.
package progress

import (
	"sync"
)

// ChannelScan is the fixed channel name scan events are published on.
const ChannelScan = "scan"

// Event is one progress message in wire shape.
type Event struct {
	Type            string  `json:"type"`
	ScanID          int64   `json:"scan_id,omitempty"`
	Phase           int     `json:"phase,omitempty"`
	PhaseName       string  `json:"phase_name,omitempty"`
	ProgressPercent float64 `json:"progress_percent"`
	CurrentItem     string  `json:"current_item,omitempty"`
	Status          string  `json:"status,omitempty"`
}

// Event types.
const (
	TypeScanProgress = "scan_progress"
	TypeScanComplete = "scan_complete"
	TypeScanStopped  = "scan_stopped"
)

const subscriberBuffer = 64

// Hub is the publish/subscribe broker.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener on a channel. The returned cancel function
// must be called to release the subscription.
func (h *Hub) Subscribe(channel string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[chan Event]struct{})
	}
	h.subscribers[channel][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[channel]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking. Full
// subscriber buffers drop the event.
func (h *Hub) Publish(channel string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[channel] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount reports active listeners on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}
