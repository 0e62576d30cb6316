package devserver

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"moria.us/lpyp/watcher"
)

// states holds the most recently loaded file and forwards each new state to
// the listeners.
type states struct {
	lock      sync.RWMutex
	data      *watcher.State
	listeners []chan<- *watcher.State
}

func (m *states) watch(ctx context.Context, ch <-chan *watcher.State) {
	for {
		var s *watcher.State
		var ok bool
		select {
		case s, ok = <-ch:
		case <-ctx.Done():
			return
		}
		if !ok {
			logrus.Infoln("Watch channel closed")
			return
		}
		m.set(s)
	}
}

func (m *states) set(s *watcher.State) {
	m.lock.Lock()
	m.data = s
	ls := m.listeners
	var pos int
	for _, l := range ls {
		select {
		case l <- s:
			ls[pos] = l
			pos++
		default:
			// Slow listeners are dropped.
			close(l)
		}
	}
	m.listeners = ls[:pos]
	for ; pos < len(ls); pos++ {
		ls[pos] = nil
	}
	m.lock.Unlock()
}

func (m *states) addListener(ch chan<- *watcher.State) *watcher.State {
	if ch == nil {
		panic("nil channel")
	}

	m.lock.Lock()
	d := m.data
	m.listeners = append(m.listeners, ch)
	m.lock.Unlock()

	return d
}

func (m *states) removeListener(ch chan<- *watcher.State) {
	m.lock.Lock()
	for i, l := range m.listeners {
		if l == ch {
			m.listeners[i] = m.listeners[len(m.listeners)-1]
			m.listeners[len(m.listeners)-1] = nil
			m.listeners = m.listeners[:len(m.listeners)-1]
			close(ch)
			break
		}
	}
	m.lock.Unlock()
}

// get returns the current state, waiting for the first one to load.
func (m *states) get(ctx context.Context) (*watcher.State, error) {
	m.lock.RLock()
	d := m.data
	m.lock.RUnlock()

	if d != nil {
		return d, nil
	}
	ch := make(chan *watcher.State, 1)

	m.lock.Lock()
	if d = m.data; d != nil {
		m.lock.Unlock()
		return d, nil
	}
	m.listeners = append(m.listeners, ch)
	m.lock.Unlock()
	defer m.removeListener(ch)

	for {
		select {
		case d, ok := <-ch:
			if !ok {
				// Dropped as a slow listener, but the state is set now.
				m.lock.RLock()
				d = m.data
				m.lock.RUnlock()
				return d, nil
			}
			if d != nil {
				return d, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
