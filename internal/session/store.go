// Package session owns the on-disk WhatsApp credential bundle.
//
// The bundle is a directory holding the whatsmeow device store
// (one or more files, format owned by the protocol library). It is
// created before pairing, rewritten on every credential rotation,
// and deleted recursively as a unit when the session is cleared.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	. "github.com/perdanaw/wagate/internal/logging"
)

// ErrClearFailed is returned when the credential directory could not be
// removed even after the retry pass.
var ErrClearFailed = errors.New("session: clear failed")

// Store manages the credential bundle directory.
type Store struct {
	path       string
	retryDelay time.Duration
	removeAll  func(string) error
}

// NewStore creates a store for the given credential directory path.
func NewStore(path string) *Store {
	return &Store{
		path:       path,
		retryDelay: time.Second,
		removeAll:  os.RemoveAll,
	}
}

// Path returns the credential directory path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the credential directory is present.
// Filesystem absence is a normal false, never an error.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Ensure creates the credential directory if it does not exist.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.path, 0o700); err != nil {
		return fmt.Errorf("session: create %s: %w", s.path, err)
	}
	return nil
}

// Clear deletes the credential bundle recursively. The caller must have
// stopped the connection first; this store only touches the filesystem.
//
// A bulk delete is attempted first. If it fails because the directory is
// busy or not empty (typical when the OS has not yet released the sqlite
// file handles), the deletion is retried once after a fixed delay using a
// manual recursive walk. A second failure yields ErrClearFailed.
func (s *Store) Clear() error {
	if !s.Exists() {
		L_info("session: no credential directory to clear", "path", s.path)
		return nil
	}

	L_info("session: removing credential directory", "path", s.path)
	err := s.removeAll(s.path)
	if err == nil {
		return nil
	}

	if !isBusy(err) {
		return fmt.Errorf("%w: %v", ErrClearFailed, err)
	}

	L_warn("session: bulk delete failed, retrying with manual walk", "error", err)
	time.Sleep(s.retryDelay)

	if err := removeTree(s.path); err != nil {
		return fmt.Errorf("%w: retry: %v", ErrClearFailed, err)
	}
	return nil
}

// isBusy reports whether the error is the busy/not-empty class worth a retry.
func isBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ENOTEMPTY)
}

// removeTree deletes a directory tree entry by entry: files first, then a
// recursive descent into subdirectories, then the now-empty directory.
// Individual file failures are logged and skipped so one stuck file does
// not mask the rest of the cleanup; the final Remove reports whether the
// tree actually emptied.
func removeTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := removeTree(p); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(p); err != nil {
			L_warn("session: could not remove file", "path", p, "error", err)
		}
	}

	return os.Remove(dir)
}
