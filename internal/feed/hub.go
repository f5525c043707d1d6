// Package feed fans out "this month changed" signals to listeners.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/daybook/internal/model"
)

// Listener receives a signal each time its month changes. Signals coalesce:
// a listener that has not drained its channel sees one pending signal no
// matter how many writes happened.
type Listener struct {
	hub   *Hub
	month model.MonthKey
	c     chan struct{}
}

// C returns the signal channel. It is closed by Close.
func (l *Listener) C() <-chan struct{} {
	return l.c
}

func (l *Listener) Month() model.MonthKey {
	return l.month
}

// Close unregisters the listener. Calling it twice is safe.
func (l *Listener) Close() {
	l.hub.unwatch(l)
}

// Hub maintains month listeners and signals them on change.
type Hub struct {
	mu        sync.RWMutex
	listeners map[model.MonthKey]map[*Listener]struct{}
	logger    *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		listeners: make(map[model.MonthKey]map[*Listener]struct{}),
		logger:    logger,
	}
}

// Watch registers a listener for month.
func (h *Hub) Watch(month model.MonthKey) *Listener {
	l := &Listener{hub: h, month: month, c: make(chan struct{}, 1)}

	h.mu.Lock()
	set, ok := h.listeners[month]
	if !ok {
		set = make(map[*Listener]struct{})
		h.listeners[month] = set
	}
	set[l] = struct{}{}
	h.mu.Unlock()
	return l
}

func (h *Hub) unwatch(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.listeners[l.month]
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(h.listeners, l.month)
	}
	close(l.c)
}

// Notify signals every listener of the given months. It never blocks.
func (h *Hub) Notify(_ context.Context, months ...model.MonthKey) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, m := range months {
		n := 0
		for l := range h.listeners[m] {
			select {
			case l.c <- struct{}{}:
			default:
				// A signal is already pending.
			}
			n++
		}
		if n > 0 {
			h.logger.Debug("month changed", "month", m.String(), "listeners", n)
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.listeners {
		n += len(set)
	}
	return n
}
