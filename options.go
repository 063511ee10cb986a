package sessioncore

import (
	"time"
)

// ManagerOption defines a function signature for setting Manager options.
type ManagerOption func(*Manager)

// WithStorageKey sets the key the session record persists under.
// (default: DefaultStorageKey)
func WithStorageKey(key string) ManagerOption {
	return ManagerOption(func(m *Manager) {
		m.storageKey = key
	})
}

// WithClock sets the time source used for expiry checks. (default: time.Now)
func WithClock(now func() time.Time) ManagerOption {
	return ManagerOption(func(m *Manager) {
		m.nowFn = now
	})
}

var (
	defaultCheckInterval = time.Minute
	defaultWarnWindow    = 5 * time.Minute
)

// MonitorOption defines a function signature for setting Monitor options.
type MonitorOption func(*Monitor)

// WithCheckInterval sets the interval between expiry checks. (default: 1m)
func WithCheckInterval(d time.Duration) MonitorOption {
	return MonitorOption(func(mo *Monitor) {
		mo.interval = d
	})
}

// WithWarnWindow sets how close to expiry a session is considered expiring
// soon. (default: 5m)
func WithWarnWindow(d time.Duration) MonitorOption {
	return MonitorOption(func(mo *Monitor) {
		mo.warnWindow = d
	})
}

// WithWarnFunc sets the callback invoked when the session transitions into
// the expiring-soon state. It must not block; it is advisory only and no
// action is forced.
func WithWarnFunc(fn func(remaining time.Duration)) MonitorOption {
	return MonitorOption(func(mo *Monitor) {
		mo.warnFn = fn
	})
}

// WithExpiredFunc sets the callback invoked when an expired token forces a
// logout.
func WithExpiredFunc(fn func()) MonitorOption {
	return MonitorOption(func(mo *Monitor) {
		mo.expiredFn = fn
	})
}

// WithMonitorClock sets the time source used by the monitor.
// (default: time.Now)
func WithMonitorClock(now func() time.Time) MonitorOption {
	return MonitorOption(func(mo *Monitor) {
		mo.nowFn = now
	})
}
