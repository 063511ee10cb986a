package sessionstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/errors/v5"
)

var (
	_ Store   = &File{}
	_ Watcher = &File{}
)

// File stores values in a single JSON file. It is the medium for the
// platform's non-browser shells, where separate processes stand in for
// tabs: fsnotify raises the change notification the browser storage event
// would.
type File struct {
	path string

	// mu serializes read-modify-write cycles within this process. Cross
	// process writers are last-write-wins, same as two tabs racing on one
	// cookie.
	mu sync.Mutex
}

// NewFile returns a store backed by the file at path. The file is created
// on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", false
	}
	v, ok := values[key]

	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		// A corrupt or missing file is replaced, not propagated.
		values = map[string]string{}
	}
	values[key] = value

	if err := f.write(values); err != nil {
		return errors.Wrap(err, "sessionstore.File.write()")
	}

	return nil
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return nil
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)

	if err := f.write(values); err != nil {
		return errors.Wrap(err, "sessionstore.File.write()")
	}

	return nil
}

// Watch watches the store file and delivers a Change whenever the value
// under key differs from the last observed one. Watching the directory
// rather than the file keeps the watch alive across the atomic
// rename performed by write().
func (f *File) Watch(ctx context.Context, key string) (<-chan Change, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "fsnotify.NewWatcher()")
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()

		return nil, errors.Wrap(err, "fsnotify.Watcher.Add()")
	}

	ch := make(chan Change, 8)
	lastValue, lastPresent := f.Get(key)

	go func() {
		defer watcher.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}

				value, present := f.Get(key)
				if present == lastPresent && value == lastValue {
					continue
				}
				change := Change{Key: key, Value: value, Removed: !present}
				lastValue, lastPresent = value, present

				select {
				case ch <- change:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return ch, nil
}

func (f *File) read() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "os.ReadFile()")
	}

	values := map[string]string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal()")
	}

	return values, nil
}

// write replaces the file atomically so readers in other processes never
// observe a partial record.
func (f *File) write(values map[string]string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "json.Marshal()")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return errors.Wrap(err, "os.CreateTemp()")
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return errors.Wrap(err, "os.File.Write()")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return errors.Wrap(err, "os.File.Close()")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())

		return errors.Wrap(err, "os.Rename()")
	}

	return nil
}
