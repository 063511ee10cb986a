package sessioncore

import (
	"context"
	"sync"

	"github.com/classpad/sessioncore/sessionstore"
	"github.com/cccteam/logger"
)

// Visibility is the host's page/window visibility signal.
type Visibility int

const (
	Hidden Visibility = iota
	Visible
)

// Synchronizer bridges external signals into SyncFromStorage calls: store
// change notifications from other clients, and hidden-to-visible
// transitions, which cover changes made while this client was backgrounded
// and change notifications were coalesced or missed.
//
// It is purely event driven; there is no polling. Either signal source may
// be nil, in which case only the other triggers reconciliation.
type Synchronizer struct {
	manager    *Manager
	changes    <-chan sessionstore.Change
	visibility <-chan Visibility

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewSynchronizer wires the manager to its reconciliation signals.
func NewSynchronizer(manager *Manager, changes <-chan sessionstore.Change, visibility <-chan Visibility) *Synchronizer {
	return &Synchronizer{
		manager:    manager,
		changes:    changes,
		visibility: visibility,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start begins listening. It runs once; repeated calls do not duplicate
// listeners.
func (s *Synchronizer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.stopped)

	last := Visible
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case change, ok := <-s.changes:
			if !ok {
				s.changes = nil

				continue
			}
			if change.Key != s.manager.StorageKey() {
				continue
			}
			if _, err := s.manager.SyncFromStorage(ctx); err != nil {
				logger.Ctx(ctx).Errorf("sync after store change: %v", err)
			}
		case v, ok := <-s.visibility:
			if !ok {
				s.visibility = nil

				continue
			}
			wasHidden := last == Hidden
			last = v
			if !wasHidden || v != Visible {
				continue
			}
			if _, err := s.manager.SyncFromStorage(ctx); err != nil {
				logger.Ctx(ctx).Errorf("sync after visibility change: %v", err)
			}
		}
	}
}

// Close releases both listeners. Safe to call more than once; a leaked
// listener here would double the forced-logout side effects downstream.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Done is closed once the synchronizer has fully stopped.
func (s *Synchronizer) Done() <-chan struct{} {
	return s.stopped
}
