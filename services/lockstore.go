package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"reflect"
	"syscall"
)

// LockedStore performs advisory-lock-protected read-modify-write cycles on
// JSON mailbox files. The lock lives in a sidecar "<path>.lock" file so the
// payload file itself can be deleted while the lock is held. Locking is
// cooperative: every participant in the protocol (this process and the
// host plugin) must go through the same sidecar.
type LockedStore struct{}

// NewLockedStore creates a store for lock-protected mailbox access.
func NewLockedStore() *LockedStore {
	return &LockedStore{}
}

// acquire opens (creating if needed) the sidecar lock file and takes an
// exclusive flock on it, blocking until the lock is granted.
func (s *LockedStore) acquire(path string) (*os.File, error) {
	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file for %s: %w", path, err)
	}
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		lock.Close()
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}
	return lock, nil
}

// release drops the flock and closes the sidecar handle. Errors here are
// logged only: the lock is released by the close even if LOCK_UN fails.
func (s *LockedStore) release(path string, lock *os.File) {
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_UN); err != nil {
		log.Printf("WARN: failed to unlock %s: %v", path, err)
	}
	if err := lock.Close(); err != nil {
		log.Printf("WARN: failed to close lock file for %s: %v", path, err)
	}
}

// CreateIfAbsent writes the initial record to path only when the file does
// not exist yet. Returns true when it created the file.
func (s *LockedStore) CreateIfAbsent(path string, initial any) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal initial record for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return true, nil
}

// Update runs a locked read-modify-write cycle on path. The current content
// is unmarshalled into record; if the file is missing or holds malformed
// JSON, record keeps the default the caller passed in so the cycle still
// makes forward progress. The operation mutates record in place; the result
// is written back pretty-printed before the lock is released. The lock is
// released on every exit path.
func (s *LockedStore) Update(path string, record any, op func() error) error {
	lock, err := s.acquire(path)
	if err != nil {
		return err
	}
	defer s.release(path, lock)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		decodePreservingDefault(path, data, record)
	case os.IsNotExist(err):
		// Nothing on disk yet; the caller's default record stands.
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := op(); err != nil {
		return fmt.Errorf("locked operation on %s failed: %w", path, err)
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record for %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Read runs a locked read-only cycle on path, unmarshalling into record.
// Malformed JSON leaves the caller's default record intact, like Update.
func (s *LockedStore) Read(path string, record any) error {
	lock, err := s.acquire(path)
	if err != nil {
		return err
	}
	defer s.release(path, lock)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	decodePreservingDefault(path, data, record)
	return nil
}

// Take reads path into record and removes the file within one locked
// section, so a write landing between the read and the delete cannot be
// lost. Returns false when the file does not exist.
func (s *LockedStore) Take(path string, record any) (bool, error) {
	lock, err := s.acquire(path)
	if err != nil {
		return false, err
	}
	defer s.release(path, lock)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	decodePreservingDefault(path, data, record)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return true, nil
}

// decodePreservingDefault unmarshals data into record only when the whole
// payload parses. json.Unmarshal mutates fields decoded before a syntax or
// type error, so decoding goes through a scratch value of the same type and
// a parse failure leaves the caller's default record untouched.
func decodePreservingDefault(path string, data []byte, record any) {
	scratch := reflect.New(reflect.TypeOf(record).Elem())
	if err := json.Unmarshal(data, scratch.Interface()); err != nil {
		log.Printf("WARN: malformed content in %s, using default record: %v", path, err)
		return
	}
	reflect.ValueOf(record).Elem().Set(scratch.Elem())
}

// Remove deletes path under its lock. A file that is already gone counts
// as removed, so cleanup is safe to repeat.
func (s *LockedStore) Remove(path string) error {
	lock, err := s.acquire(path)
	if err != nil {
		return err
	}
	defer s.release(path, lock)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
