// Package credentials owns the local user directory: a JSON file mapping
// usernames to salted password hashes.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ErrUsernameTaken is returned by Add when the username already exists
var ErrUsernameTaken = errors.New("credentials: username already taken")

// Entry is one local account
type Entry struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	PassHash   string `json:"passHash"`
	PassSalt   string `json:"passSalt"`
}

// Store is the in-memory copy of the local users file. Every successful Add
// rewrites the file.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
	logger  logrus.FieldLogger
}

// Load reads the directory at path. A missing file yields an empty store
// that will be created on the first registration.
func Load(path string, logger logrus.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Store{
		path:   path,
		logger: logger.WithField("component", "credentials"),
	}

	entries, err := readFile(path)
	if errors.Is(err, os.ErrNotExist) {
		entries, err = make(map[string]Entry), nil
	}
	if err != nil {
		return nil, err
	}
	s.entries = entries
	s.logger.WithField("users", len(entries)).Info("Loaded local users")
	return s, nil
}

func readFile(path string) (map[string]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read local users %s: %w", path, err)
	}

	entries := make(map[string]Entry)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse local users %s: %w", path, err)
	}
	return entries, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the entry for username. Usernames are case sensitive.
func (s *Store) Lookup(username string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[username]
	return entry, ok
}

// Exists reports whether username is registered
func (s *Store) Exists(username string) bool {
	_, ok := s.Lookup(username)
	return ok
}

// Len returns the number of registered users
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Add registers a new user and flushes the directory. The existence check
// and the write happen under one lock, so two registrations of the same
// username cannot both succeed. If the flush fails the entry is removed
// again and the error is returned.
func (s *Store) Add(username string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[username]; ok {
		return ErrUsernameTaken
	}

	s.entries[username] = entry
	if err := s.flushLocked(); err != nil {
		delete(s.entries, username)
		s.logger.WithError(err).WithField("username", username).Error("Failed to write local users file")
		return err
	}
	return nil
}

// flushLocked writes the directory tab-indented to a temp file and renames
// it over the original.
func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "\t")
	if err != nil {
		return fmt.Errorf("encode local users: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".localusers-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace local users file: %w", err)
	}
	return nil
}

// Reload replaces the in-memory directory with the file contents. A file
// that is missing or fails to parse leaves the current directory in place.
// The read happens under the write lock so a concurrent Add is never lost.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := readFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Local users file is gone, keeping current users")
		return nil
	}
	if err != nil {
		return err
	}

	s.entries = entries
	s.logger.WithField("users", len(entries)).Info("Reloaded local users")
	return nil
}

// Watch reloads the directory whenever the file is changed on disk, until
// ctx is cancelled. The parent directory is watched so that editors which
// replace the file by rename are picked up.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	defer observability.RecoverPanic(s.logger, "credentials watcher")

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// a rename away is followed by Create for the replacement
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.WithError(err).Warn("Ignoring unreadable local users file")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WithError(err).Warn("Watcher error")
		}
	}
}
