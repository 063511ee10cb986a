// Package sessioncore implements the client-side session state for the
// platform: one durable record of the signed-in user and their token, kept
// consistent across every client sharing the same storage medium.
package sessioncore

import (
	"context"
	"sync"
	"time"

	"github.com/classpad/sessioncore/access"
	"github.com/classpad/sessioncore/sessionstore"
	"github.com/classpad/sessioncore/sessiontypes"
	"github.com/cccteam/logger"
	"github.com/go-playground/errors/v5"
	"github.com/gofrs/uuid"
	"go.opentelemetry.io/otel"
)

const name = "github.com/classpad/sessioncore"

// DefaultStorageKey is the fixed key (and cookie name) the session record
// persists under.
const DefaultStorageKey = "classpad_session"

// Manager owns the in-memory session record for one client and is the only
// writer of the persistent store. Everything else either reads it (guard,
// permission resolution) or asks it to mutate (synchronizer, lifecycle
// monitor, explicit login/logout).
type Manager struct {
	store      sessionstore.Store
	storageKey string
	instanceID uuid.UUID
	nowFn      func() time.Time

	mu      sync.RWMutex
	record  sessiontypes.Record
	loaded  bool
	subs    map[int]func()
	nextSub int
}

// NewManager creates a Manager over the given store. The record is not
// loaded until Initialize is called.
func NewManager(store sessionstore.Store, options ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		storageKey: DefaultStorageKey,
		instanceID: uuid.Must(uuid.NewV4()),
		nowFn:      time.Now,
		subs:       make(map[int]func()),
	}
	for _, opt := range options {
		opt(m)
	}

	return m
}

// StorageKey returns the key this manager persists under.
func (m *Manager) StorageKey() string {
	return m.storageKey
}

// InstanceID identifies this manager instance in logs when several clients
// share one store.
func (m *Manager) InstanceID() uuid.UUID {
	return m.instanceID
}

// Initialize loads the session record from the store. It is idempotent and
// safe to call concurrently; once state is loaded, further calls are no-ops.
// A record that fails to parse is cleared from storage and the manager
// starts logged out.
func (m *Manager) Initialize(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.Initialize()")
	defer span.End()

	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()

		return nil
	}
	record, reset := m.loadLocked(ctx)
	m.record = record
	m.loaded = true
	m.mu.Unlock()

	if reset {
		if err := m.store.Remove(m.storageKey); err != nil {
			return errors.Wrap(err, "sessionstore.Store.Remove()")
		}
	}
	m.notify()

	return nil
}

// loadLocked reads and decodes the persisted record. reset reports that the
// stored payload was malformed and must be cleared.
func (m *Manager) loadLocked(ctx context.Context) (record sessiontypes.Record, reset bool) {
	payload, ok := m.store.Get(m.storageKey)
	if !ok {
		return sessiontypes.Empty(), false
	}

	record, err := sessiontypes.Decode(payload)
	if err != nil {
		logger.Ctx(ctx).Errorf("discarding unreadable session record for instance %s: %v", m.instanceID, err)

		return sessiontypes.Empty(), true
	}

	return record, false
}

// Login atomically replaces the session record with the given user and
// token and persists it. No partial state is ever observable.
func (m *Manager) Login(ctx context.Context, user sessiontypes.User, token sessiontypes.Token) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.Login()")
	defer span.End()

	record := sessiontypes.Record{User: &user, Token: &token, IsLoggedIn: true}
	payload, err := sessiontypes.Encode(record)
	if err != nil {
		return errors.Wrap(err, "sessiontypes.Encode()")
	}

	// Persist before adopting: a failed write must leave memory and
	// subscribers on the old state, never half logged in.
	if err := m.store.Set(m.storageKey, payload); err != nil {
		return errors.Wrap(err, "sessionstore.Store.Set()")
	}

	m.mu.Lock()
	m.record = record
	m.loaded = true
	m.mu.Unlock()

	logger.Ctx(ctx).Infof("user %s logged in", user.Username)
	m.notify()

	return nil
}

// Logout clears the session record from memory and storage. Safe to call
// when already logged out; a redundant call changes nothing observable.
func (m *Manager) Logout(ctx context.Context) error {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.Logout()")
	defer span.End()

	m.mu.Lock()
	already := m.record.LoggedOut()
	username := ""
	if m.record.User != nil {
		username = m.record.User.Username
	}
	m.mu.Unlock()

	if err := m.store.Remove(m.storageKey); err != nil {
		return errors.Wrap(err, "sessionstore.Store.Remove()")
	}

	m.mu.Lock()
	m.record = sessiontypes.Empty()
	m.loaded = true
	m.mu.Unlock()

	if !already {
		logger.Ctx(ctx).Infof("user %s logged out", username)
		m.notify()
	}

	return nil
}

// SyncFromStorage re-reads the store and adopts the stored record when it
// differs from memory. This is how a client observes a login or logout
// performed by another client on the same medium; whichever write landed
// last in the store wins, with no merge.
func (m *Manager) SyncFromStorage(ctx context.Context) (changed bool, err error) {
	ctx, span := otel.Tracer(name).Start(ctx, "Manager.SyncFromStorage()")
	defer span.End()

	payload, ok := m.store.Get(m.storageKey)

	var incoming sessiontypes.Record
	reset := false
	if ok {
		incoming, err = sessiontypes.Decode(payload)
		if err != nil {
			logger.Ctx(ctx).Errorf("discarding unreadable session record for instance %s: %v", m.instanceID, err)
			incoming, reset = sessiontypes.Empty(), true
		}
	}

	m.mu.Lock()
	changed = !m.record.Equal(incoming)
	m.record = incoming
	m.loaded = true
	m.mu.Unlock()

	if reset {
		if err := m.store.Remove(m.storageKey); err != nil {
			return changed, errors.Wrap(err, "sessionstore.Store.Remove()")
		}
	}
	if changed {
		m.notify()
	}

	return changed, nil
}

// IsTokenExpired reports whether the current token has expired. Fail-closed:
// true when no token is present.
func (m *Manager) IsTokenExpired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.record.Expired(m.nowFn())
}

// IsLoggedIn reports the session's logged-in flag.
func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.record.IsLoggedIn
}

// User returns the signed-in user, if any.
func (m *Manager) User() (sessiontypes.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record.User == nil {
		return sessiontypes.User{}, false
	}

	return *m.record.User, true
}

// Token returns the current token, if any.
func (m *Manager) Token() (sessiontypes.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.record.Token == nil {
		return sessiontypes.Token{}, false
	}

	return *m.record.Token, true
}

// Snapshot returns a copy of the current record.
func (m *Manager) Snapshot() sessiontypes.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record := m.record
	if m.record.User != nil {
		user := *m.record.User
		record.User = &user
	}
	if m.record.Token != nil {
		token := *m.record.Token
		record.Token = &token
	}

	return record
}

// Permissions resolves the capability set for the current user. Logged-out
// sessions resolve to guest defaults.
func (m *Manager) Permissions() access.CapabilitySet {
	user, ok := m.User()
	if !ok {
		return access.Resolve(nil)
	}

	return user.Permissions()
}

// Subscribe registers fn to run after every observable state change. The
// returned cancel function removes the subscription; calling it more than
// once is harmless.
func (m *Manager) Subscribe(fn func()) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify() {
	m.mu.RLock()
	subs := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}
