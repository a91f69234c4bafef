// Package connectivity reports whether the remote ledger is reachable and
// when it becomes reachable again.
package connectivity

import "sync"

// Signal is consumed by the sync scheduler and the upload dispatcher.
type Signal interface {
	Online() bool
	// Reconnected receives one value per offline to online transition.
	// Values are dropped if nobody is listening.
	Reconnected() <-chan struct{}
}

// Manual is a Signal driven by hand. The zero value is offline.
type Manual struct {
	mu     sync.Mutex
	online bool
	ch     chan struct{}
}

var _ Signal = (*Manual)(nil)

func NewManual(online bool) *Manual {
	return &Manual{online: online, ch: make(chan struct{}, 1)}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) Reconnected() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
	return m.ch
}

// Set changes the state, emitting a reconnect on offline to online.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch == nil {
		m.ch = make(chan struct{}, 1)
	}
	was := m.online
	m.online = online
	if !was && online {
		notify(m.ch)
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
