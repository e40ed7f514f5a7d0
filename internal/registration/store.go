// Package registration keeps the display names callers send on first contact.
package registration

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"server_monitor_bot/internal/domain"
)

// MaxNameLength caps stored display names, in runes.
const MaxNameLength = 64

// Observer is notified after a new registration, outside the store lock.
type Observer interface {
	Registered(reg domain.Registration)
}

// Store maps caller ids to display names. The first write for an id wins.
type Store struct {
	mu       sync.RWMutex
	byID     map[int64]domain.Registration
	order    []int64
	observer Observer
	now      func() time.Time
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		byID: make(map[int64]domain.Registration),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver installs the registration observer. Passing nil removes it.
func (s *Store) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// Register records name for id unless id is already registered or name is
// blank. It reports whether the insert happened.
func (s *Store) Register(id int64, name string) bool {
	name = NormalizeName(name)
	if name == "" {
		return false
	}

	s.mu.Lock()
	if _, exists := s.byID[id]; exists {
		s.mu.Unlock()
		return false
	}
	reg := domain.Registration{UserID: id, DisplayName: name, RegisteredAt: s.now()}
	s.byID[id] = reg
	s.order = append(s.order, id)
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.Registered(reg)
	}
	return true
}

// Lookup returns the display name registered for id.
func (s *Store) Lookup(id int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.byID[id]
	return reg.DisplayName, ok
}

// List returns all registrations in insertion order.
func (s *Store) List() []domain.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Registration, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of registrations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Restore appends persisted registrations, skipping ids already present.
// The observer is not notified.
func (s *Store) Restore(regs []domain.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range regs {
		if _, exists := s.byID[reg.UserID]; exists {
			continue
		}
		s.byID[reg.UserID] = reg
		s.order = append(s.order, reg.UserID)
	}
}

// NormalizeName collapses whitespace and truncates to MaxNameLength runes.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	return string([]rune(name)[:MaxNameLength])
}
