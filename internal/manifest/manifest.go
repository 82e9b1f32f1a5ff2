// Package manifest persists the migration checkpoint: which version a
// given database instance has reached, the append-only application
// history, and the advisory upgrade lock.
//
// The manifest is a single document (collection "docpatch", id
// "manifest"). Every mutation goes through the store's revision
// compare-and-swap, so two upgraders racing on the same database
// cannot silently overwrite each other's state.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/docpatch/internal/docstore"
	"github.com/roach88/docpatch/internal/patch"
)

// Storage location of the manifest document.
const (
	Collection = "docpatch"
	DocumentID = "manifest"
)

// Manifest errors.
var (
	// ErrNotInitialized indicates no manifest document exists; run init
	// first.
	ErrNotInitialized = errors.New("manifest not initialized")

	// ErrAlreadyInitialized indicates init was run on a database that
	// already has a manifest. The existing manifest is left untouched.
	ErrAlreadyInitialized = errors.New("manifest already initialized")
)

// LockHeldError indicates another upgrade holds the advisory lock.
type LockHeldError struct {
	Holder    string
	ExpiresAt time.Time
}

// Error implements the error interface.
func (e *LockHeldError) Error() string {
	return fmt.Sprintf("upgrade lock held by %s until %s", e.Holder, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// HistoryEntry is one record in the append-only application log.
type HistoryEntry struct {
	Version   patch.Version `json:"version"`
	AppliedAt time.Time     `json:"applied_at"`
	Reason    string        `json:"reason,omitempty"`
}

// Lock is the advisory lock marker. A lock past its expiry is treated
// as released: a crashed holder must not block upgrades forever.
type Lock struct {
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock's lease has lapsed at the given time.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Manifest is the loaded manifest document plus the store revision it
// was read at, used as the precondition for the next write.
type Manifest struct {
	Version patch.Version  `json:"version"`
	History []HistoryEntry `json:"history"`
	Lock    *Lock          `json:"lock,omitempty"`

	rev int64
}

// Init creates the manifest document at version Initial with a single
// "initialize" history entry and no lock. Fails with
// ErrAlreadyInitialized if a manifest already exists.
func Init(ctx context.Context, store *docstore.Store, now time.Time) (*Manifest, error) {
	m := &Manifest{
		Version: patch.Initial,
		History: []HistoryEntry{
			{Version: patch.Initial, AppliedAt: now.UTC(), Reason: "initialize"},
		},
		rev: 1,
	}

	err := store.Insert(ctx, Collection, DocumentID, m)
	if errors.Is(err, docstore.ErrExists) {
		return nil, ErrAlreadyInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("initialize manifest: %w", err)
	}
	return m, nil
}

// Load reads the manifest document. Fails with ErrNotInitialized if it
// does not exist.
func Load(ctx context.Context, store *docstore.Store) (*Manifest, error) {
	m := &Manifest{}
	rev, err := store.GetRev(ctx, Collection, DocumentID, m)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	m.rev = rev
	return m, nil
}

// casAttempts bounds the reload-and-retry loop on revision conflicts.
// Conflicts only happen when another process writes the manifest at the
// same instant; three attempts is plenty for an advisory lock.
const casAttempts = 3

// AcquireLock claims the advisory lock for token with the given lease
// duration. Fails fast with *LockHeldError if a live lock is held by
// someone else; an expired lock is reclaimed. Re-acquiring with the
// same token refreshes the lease.
func (m *Manifest) AcquireLock(ctx context.Context, store *docstore.Store, token string, ttl time.Duration, now time.Time) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if m.Lock != nil && m.Lock.Token != token && !m.Lock.Expired(now) {
			return &LockHeldError{Holder: m.Lock.Token, ExpiresAt: m.Lock.ExpiresAt}
		}

		m.Lock = &Lock{
			Token:      token,
			AcquiredAt: now.UTC(),
			ExpiresAt:  now.UTC().Add(ttl),
		}

		err := m.replace(ctx, store)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrConflict) {
			return fmt.Errorf("acquire lock: %w", err)
		}

		// Someone else wrote the manifest between our read and write.
		// Reload and re-check who holds the lock now.
		if err := m.reload(ctx, store); err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
	}
	return fmt.Errorf("acquire lock: manifest kept changing underneath us")
}

// RecordApplied checkpoints a successful patch: atomically sets the
// current version and appends a history entry in one document write.
// This must succeed before the next patch in a sequence is attempted.
func (m *Manifest) RecordApplied(ctx context.Context, store *docstore.Store, version patch.Version, now time.Time, reason string) error {
	prevVersion := m.Version
	prevHistory := m.History

	m.Version = version
	m.History = append(m.History, HistoryEntry{
		Version:   version,
		AppliedAt: now.UTC(),
		Reason:    reason,
	})

	if err := m.replace(ctx, store); err != nil {
		m.Version = prevVersion
		m.History = prevHistory
		return fmt.Errorf("record applied %s: %w", version, err)
	}
	return nil
}

// ReleaseLock clears the lock if held by token. Releasing a lock that
// is already released, expired, or held by someone else is a no-op,
// never an error: release must be safe on every exit path.
func (m *Manifest) ReleaseLock(ctx context.Context, store *docstore.Store, token string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if m.Lock == nil || m.Lock.Token != token {
			return nil
		}

		m.Lock = nil
		err := m.replace(ctx, store)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrConflict) {
			return fmt.Errorf("release lock: %w", err)
		}
		if err := m.reload(ctx, store); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
	}
	return fmt.Errorf("release lock: manifest kept changing underneath us")
}

// replace writes the manifest back guarded by the revision it was read
// at, and records the new revision on success.
func (m *Manifest) replace(ctx context.Context, store *docstore.Store) error {
	rev, err := store.Replace(ctx, Collection, DocumentID, m, m.rev)
	if err != nil {
		return err
	}
	m.rev = rev
	return nil
}

// reload refreshes the manifest in place from the store.
func (m *Manifest) reload(ctx context.Context, store *docstore.Store) error {
	fresh, err := Load(ctx, store)
	if err != nil {
		return err
	}
	*m = *fresh
	return nil
}
