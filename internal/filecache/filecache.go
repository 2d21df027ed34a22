// Package filecache stores JSON payloads on disk inside a timestamped envelope.
//
// Every file holds {"created_at": ..., "payload": ...}. An envelope is valid while
// now - created_at < ttl; stale and missing files both read as a miss. Errors are
// returned as domain failures.
package filecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

// Envelope wraps a cached payload with its creation time.
type Envelope[T any] struct {
	CreatedAt time.Time `json:"created_at"`
	Payload   T         `json:"payload"`
}

// Valid reports whether the envelope is still inside its TTL at now.
func (e Envelope[T]) Valid(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) < ttl
}

// Store is a directory of envelope files. It does not lock per key; concurrent
// writers of the same file race and the last rename wins.
type Store struct {
	root string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Store {
	s := &Store{root: root, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Read loads the envelope at name and returns its payload if it is valid.
func Read[T any](s *Store, name string, ttl time.Duration) (T, bool, error) {
	var zero T
	env, ok, err := readEnvelope[T](s.path(name))
	if err != nil || !ok {
		return zero, false, err
	}
	if !env.Valid(s.now(), ttl) {
		return zero, false, nil
	}
	return env.Payload, true, nil
}

// Write stores payload at name with the current time, replacing any previous file atomically.
func Write[T any](s *Store, name string, payload T) error {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return domerrors.MapError(err)
	}
	return writeEnvelope(path, Envelope[T]{CreatedAt: s.now(), Payload: payload})
}

// ReadDir loads every envelope in dir. The result is a hit only when the
// directory holds at least one file and every file is valid.
func ReadDir[T any](s *Store, dir string, ttl time.Duration) (map[string]T, bool, error) {
	entries, err := os.ReadDir(s.path(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domerrors.MapError(err)
	}

	now := s.now()
	out := make(map[string]T, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		env, ok, err := readEnvelope[T](filepath.Join(s.path(dir), entry.Name()))
		if err != nil {
			return nil, false, err
		}
		if !ok || !env.Valid(now, ttl) {
			return nil, false, nil
		}
		out[entry.Name()] = env.Payload
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// WriteDir replaces dir with one envelope file per entry, all sharing one
// created_at. Files are written into a sibling temp dir which is then renamed
// into place, so readers see either the old set or the new one.
func WriteDir[T any](s *Store, dir string, entries map[string]T) error {
	target := s.path(dir)
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return domerrors.MapError(err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(target)+"-*")
	if err != nil {
		return domerrors.MapError(err)
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	createdAt := s.now()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeEnvelope(filepath.Join(tmp, name), Envelope[T]{CreatedAt: createdAt, Payload: entries[name]}); err != nil {
			return err
		}
	}

	old := tmp + ".old"
	if err := os.Rename(target, old); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domerrors.MapError(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return domerrors.MapError(err)
	}
	if err := os.RemoveAll(old); err != nil {
		return domerrors.MapError(err)
	}
	return nil
}

// Remove deletes name (file or directory). Removing something absent succeeds.
func (s *Store) Remove(name string) error {
	if err := os.RemoveAll(s.path(name)); err != nil {
		return domerrors.MapError(err)
	}
	return nil
}

func readEnvelope[T any](path string) (Envelope[T], bool, error) {
	var env Envelope[T]
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return env, false, nil
	}
	if err != nil {
		return env, false, domerrors.MapError(err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, false, domerrors.NewJSONParsingError(fmt.Sprintf("corrupt cache file %s: %v", filepath.Base(path), err), err)
	}
	return env, true, nil
}

func writeEnvelope[T any](path string, env Envelope[T]) error {
	data, err := json.Marshal(env)
	if err != nil {
		return domerrors.NewJSONParsingError("encode cache entry", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return domerrors.MapError(err)
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return domerrors.MapError(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return domerrors.MapError(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return domerrors.MapError(err)
	}
	return nil
}
