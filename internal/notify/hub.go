package notify

import (
	"context"
	"sync"

	"franklin/internal/domain/entity"
)

const defaultQueueSize = 16

// Hub fans progress events out to the subscribers of each job. There is no
// replay: an event published while nobody listens is gone.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]map[*subscriber]struct{}
	queueSize int
}

type subscriber struct {
	ch   chan entity.ProgressEvent
	done chan struct{}
	once sync.Once
}

func NewHub() *Hub {
	return NewHubWithQueue(defaultQueueSize)
}

// NewHubWithQueue sets the per-subscriber buffer. Events beyond it are dropped.
func NewHubWithQueue(size int) *Hub {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), queueSize: size}
}

// Subscribe calls handler for every event on jobID, in order, on a goroutine
// owned by the subscription. The returned func detaches it and is safe to call
// more than once.
func (h *Hub) Subscribe(jobID string, handler func(entity.ProgressEvent)) func() {
	s := &subscriber{
		ch:   make(chan entity.ProgressEvent, h.queueSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[jobID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.done:
				return
			case ev := <-s.ch:
				handler(ev)
			}
		}
	}()

	return func() {
		s.once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[jobID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
			h.mu.Unlock()
			close(s.done)
		})
	}
}

// Publish never blocks. A subscriber whose queue is full misses the event.
func (h *Hub) Publish(_ context.Context, event entity.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[event.JobID] {
		select {
		case s.ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[jobID])
}
