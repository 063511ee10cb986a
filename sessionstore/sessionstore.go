// Package sessionstore provides the durable key-value media that back the
// session record: a browser-cookie medium, a file medium for non-browser
// hosts, and an in-memory medium for tests.
//
// Stores never fail on an absent medium; every operation degrades to a
// no-op or an absent value so a client without durable storage still runs,
// just without persistence.
package sessionstore

import "context"

// Store is durable key-value storage for serialized session records.
type Store interface {
	// Get returns the stored value, or ok=false when absent or the medium
	// is unavailable.
	Get(key string) (value string, ok bool)
	// Set writes the value under key.
	Set(key, value string) error
	// Remove deletes the value under key. Removing an absent key is a no-op.
	Remove(key string) error
}

// Change describes an external mutation of a watched store.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Watcher is implemented by stores whose medium can signal external
// mutations, the analog of the browser storage event. The cookie medium has
// no such signal; clients on it reconcile only on visibility changes.
type Watcher interface {
	// Watch delivers changes to key until ctx is canceled. Notifications may
	// coalesce under load; consumers must re-read the store rather than
	// trust the carried value alone.
	Watch(ctx context.Context, key string) (<-chan Change, error)
}
