package sessioncore

import (
	"context"
	"sync"
	"time"

	"github.com/cccteam/logger"
	"go.opentelemetry.io/otel"
)

// MonitorState classifies the session's token lifecycle.
type MonitorState int

const (
	// StateNoSession means no user or token is present; the monitor is
	// inert and no timer runs.
	StateNoSession MonitorState = iota
	// StateActive means the token has five minutes or more remaining.
	StateActive
	// StateExpiringSoon means the token expires in under five minutes.
	StateExpiringSoon
	// StateExpired means the token has expired and a logout was forced.
	StateExpired
)

func (s MonitorState) String() string {
	switch s {
	case StateNoSession:
		return "NO_SESSION"
	case StateActive:
		return "ACTIVE"
	case StateExpiringSoon:
		return "EXPIRING_SOON"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Monitor periodically classifies the token lifecycle and forces a logout
// once the token expires. The interval timer runs only while a session is
// present; it starts when one appears and is released on logout or Close.
type Monitor struct {
	manager    *Manager
	interval   time.Duration
	warnWindow time.Duration
	warnFn     func(remaining time.Duration)
	expiredFn  func()
	nowFn      func() time.Time

	mu    sync.Mutex
	state MonitorState

	startOnce sync.Once
	closeOnce sync.Once
	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	unsub     func()
}

// NewMonitor creates a Monitor over the manager. Call Start to begin
// checking.
func NewMonitor(manager *Manager, options ...MonitorOption) *Monitor {
	mo := &Monitor{
		manager:    manager,
		interval:   defaultCheckInterval,
		warnWindow: defaultWarnWindow,
		nowFn:      time.Now,
		state:      StateNoSession,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(mo)
	}

	return mo
}

// State returns the last classification.
func (mo *Monitor) State() MonitorState {
	mo.mu.Lock()
	defer mo.mu.Unlock()

	return mo.state
}

// Start checks once immediately, then on every interval tick while a
// session is present. Repeated calls do not start a second loop.
func (mo *Monitor) Start(ctx context.Context) {
	mo.startOnce.Do(func() {
		mo.unsub = mo.manager.Subscribe(func() {
			select {
			case mo.wake <- struct{}{}:
			default:
			}
		})

		go mo.run(ctx)
	})
}

func (mo *Monitor) run(ctx context.Context) {
	defer close(mo.stopped)

	state := mo.Check(ctx)

	var ticker *time.Ticker
	var tick <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	adjust := func(s MonitorState) {
		if s == StateNoSession {
			stopTicker()
		} else if ticker == nil {
			ticker = time.NewTicker(mo.interval)
			tick = ticker.C
		}
	}
	adjust(state)

	for {
		select {
		case <-ctx.Done():
			return
		case <-mo.done:
			return
		case <-tick:
			adjust(mo.Check(ctx))
		case <-mo.wake:
			adjust(mo.Check(ctx))
		}
	}
}

// Check classifies the session once. It is side-effect-free except for the
// transition to StateExpired, which forces a logout; forcing it redundantly
// is harmless since logout when already logged out is a no-op.
func (mo *Monitor) Check(ctx context.Context) MonitorState {
	ctx, span := otel.Tracer(name).Start(ctx, "Monitor.Check()")
	defer span.End()

	record := mo.manager.Snapshot()

	next := StateNoSession
	var remaining time.Duration
	if record.User != nil && record.Token != nil {
		remaining = record.Token.Remaining(mo.nowFn())
		switch {
		case remaining <= 0:
			next = StateExpired
		case remaining < mo.warnWindow:
			next = StateExpiringSoon
		default:
			next = StateActive
		}
	}

	mo.mu.Lock()
	prev := mo.state
	mo.state = next
	mo.mu.Unlock()

	switch next {
	case StateExpired:
		logger.Ctx(ctx).Infof("session token expired; forcing logout")
		if err := mo.manager.Logout(ctx); err != nil {
			logger.Ctx(ctx).Errorf("forced logout: %v", err)
		}
		if mo.expiredFn != nil && prev != StateExpired {
			mo.expiredFn()
		}
	case StateExpiringSoon:
		if prev != StateExpiringSoon {
			logger.Ctx(ctx).Infof("session token expires in %s", remaining.Round(time.Second))
			if mo.warnFn != nil {
				mo.warnFn(remaining)
			}
		}
	case StateNoSession, StateActive:
	}

	return next
}

// Close releases the interval timer and the manager subscription.
func (mo *Monitor) Close() {
	mo.closeOnce.Do(func() {
		if mo.unsub != nil {
			mo.unsub()
		}
		close(mo.done)
	})
}
