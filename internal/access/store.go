// Package access holds the authorized and admin user sets shared by the chat
// router and the operator console.
package access

import (
	"sort"
	"sync"

	"server_monitor_bot/internal/domain"
)

// ChangeKind identifies which mutation produced a Change.
type ChangeKind string

const (
	ChangeAdd      ChangeKind = "add"
	ChangeAddAdmin ChangeKind = "add_admin"
	ChangeRemove   ChangeKind = "remove"
)

// Change describes an effective mutation of the store.
type Change struct {
	Kind   ChangeKind
	UserID int64
}

// Observer is notified after a mutation has been applied. It is called
// without the store lock held, so it may perform I/O or read the store.
type Observer interface {
	AccessChanged(change Change)
}

// Store is the authorization set. The admin set is always a subset of the
// authorized set.
type Store struct {
	mu         sync.RWMutex
	authorized map[int64]struct{}
	admins     map[int64]struct{}
	observer   Observer
}

// Option customizes a Store.
type Option func(*Store)

// WithSeed inserts the given ids into the authorized set at construction.
func WithSeed(authorized []int64) Option {
	return func(s *Store) {
		for _, id := range authorized {
			s.authorized[id] = struct{}{}
		}
	}
}

// WithAdminSeed inserts the given ids into both sets at construction.
func WithAdminSeed(admins []int64) Option {
	return func(s *Store) {
		for _, id := range admins {
			s.authorized[id] = struct{}{}
			s.admins[id] = struct{}{}
		}
	}
}

// NewStore constructs a Store. Seeds never notify the observer.
func NewStore(opts ...Option) *Store {
	s := &Store{
		authorized: make(map[int64]struct{}),
		admins:     make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetObserver installs the mutation observer. Passing nil removes it.
func (s *Store) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// IsAuthorized reports whether id is in the authorized set.
func (s *Store) IsAuthorized(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authorized[id]
	return ok
}

// IsAdmin reports whether id is in the admin set.
func (s *Store) IsAdmin(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[id]
	return ok
}

// Tier returns the highest tier id holds, read under a single lock.
func (s *Store) Tier(id int64) domain.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, authorized := s.authorized[id]
	_, admin := s.admins[id]
	return domain.TierFor(authorized, admin)
}

// Entry returns the membership of a single id.
func (s *Store) Entry(id int64) (domain.AccessEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.authorized[id]; !ok {
		return domain.AccessEntry{}, false
	}
	_, admin := s.admins[id]
	return domain.AccessEntry{UserID: id, Admin: admin}, true
}

// Add inserts id into the authorized set. Adding an existing id is a no-op
// and leaves any admin membership untouched.
func (s *Store) Add(id int64) {
	s.mu.Lock()
	_, exists := s.authorized[id]
	if !exists {
		s.authorized[id] = struct{}{}
	}
	observer := s.observer
	s.mu.Unlock()

	if !exists {
		notify(observer, Change{Kind: ChangeAdd, UserID: id})
	}
}

// AddAdmin inserts id into both the admin and the authorized set.
func (s *Store) AddAdmin(id int64) {
	s.mu.Lock()
	_, wasAdmin := s.admins[id]
	if !wasAdmin {
		s.authorized[id] = struct{}{}
		s.admins[id] = struct{}{}
	}
	observer := s.observer
	s.mu.Unlock()

	if !wasAdmin {
		notify(observer, Change{Kind: ChangeAddAdmin, UserID: id})
	}
}

// Remove deletes id from both sets and reports whether it was present.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	_, existed := s.authorized[id]
	delete(s.authorized, id)
	delete(s.admins, id)
	observer := s.observer
	s.mu.Unlock()

	if existed {
		notify(observer, Change{Kind: ChangeRemove, UserID: id})
	}
	return existed
}

// Restore applies persisted entries without notifying the observer.
func (s *Store) Restore(entries []domain.AccessEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		s.authorized[entry.UserID] = struct{}{}
		if entry.Admin {
			s.admins[entry.UserID] = struct{}{}
		}
	}
}

// List returns a snapshot of the authorized set sorted by id ascending.
func (s *Store) List() []domain.AccessEntry {
	s.mu.RLock()
	entries := make([]domain.AccessEntry, 0, len(s.authorized))
	for id := range s.authorized {
		_, admin := s.admins[id]
		entries = append(entries, domain.AccessEntry{UserID: id, Admin: admin})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Counts returns the sizes of the authorized and admin sets.
func (s *Store) Counts() (authorized, admins int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.authorized), len(s.admins)
}

func notify(o Observer, change Change) {
	if o != nil {
		o.AccessChanged(change)
	}
}
