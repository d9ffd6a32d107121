// Package network tracks whether the backend is reachable.
package network

import (
	"context"
	"sync"

	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
)

// Event is a connectivity transition.
type Event struct {
	Online bool
}

// ReconnectHook runs once for every offline -> online transition.
type ReconnectHook func(ctx context.Context)

// Monitor holds the current connectivity state. Notifications that repeat the
// current state are ignored, so subscribers and hooks only see transitions.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan Event
	nextID int
	hooks  []ReconnectHook
	logger *logging.Logger
}

// NewMonitor creates a monitor starting in the given state.
func NewMonitor(initiallyOnline bool, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Monitor{
		online: initiallyOnline,
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnReconnect registers a hook for offline -> online transitions.
func (m *Monitor) OnReconnect(hook ReconnectHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	m.mu.Unlock()
}

// Subscribe returns a channel of transitions and a function that ends the
// subscription. Slow subscribers miss events rather than block the monitor.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, 4)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Notify records an observation. It returns true when the state changed.
// Reconnect hooks run synchronously on the caller's goroutine, in
// registration order.
func (m *Monitor) Notify(ctx context.Context, online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	ev := Event{Online: online}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	var hooks []ReconnectHook
	if online {
		hooks = append(hooks, m.hooks...)
	}
	m.mu.Unlock()

	metrics.RecordNetworkTransition(online)
	if online {
		m.logger.InfoContext(ctx, "network online")
	} else {
		m.logger.WarnContext(ctx, "network offline")
	}

	for _, hook := range hooks {
		hook(ctx)
	}
	return true
}
