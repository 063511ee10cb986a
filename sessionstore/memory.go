package sessionstore

import (
	"context"
	"sync"
)

var (
	_ Store   = &Memory{}
	_ Watcher = &Memory{}
)

// Memory is an in-process store. Two session managers sharing one Memory
// model two tabs sharing one storage medium, which makes cross-tab
// convergence testable without a browser.
type Memory struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[string][]chan Change
}

func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]string),
		watchers: make(map[string][]chan Change),
	}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]

	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	watchers := append([]chan Change(nil), m.watchers[key]...)
	m.mu.Unlock()

	notify(watchers, Change{Key: key, Value: value})

	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	watchers := append([]chan Change(nil), m.watchers[key]...)
	m.mu.Unlock()

	if existed {
		notify(watchers, Change{Key: key, Removed: true})
	}

	return nil
}

func (m *Memory) Watch(ctx context.Context, key string) (<-chan Change, error) {
	ch := make(chan Change, 8)

	m.mu.Lock()
	m.watchers[key] = append(m.watchers[key], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()

		m.mu.Lock()
		defer m.mu.Unlock()
		watchers := m.watchers[key]
		for i, w := range watchers {
			if w == ch {
				m.watchers[key] = append(watchers[:i], watchers[i+1:]...)

				break
			}
		}
	}()

	return ch, nil
}

// notify delivers without blocking; a full channel drops the notification,
// the same coalescing a browser applies to storage events. Consumers re-read
// the store on every wakeup, so a dropped event costs latency, not data.
func notify(watchers []chan Change, change Change) {
	for _, w := range watchers {
		select {
		case w <- change:
		default:
		}
	}
}
