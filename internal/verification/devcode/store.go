// Package devcode keeps the most recent plaintext verification code per phone for local development
// (GET /dev/verification-code). It is only wired when OTP_RETURN_TO_CLIENT is enabled.
package devcode

import (
	"context"
	"sync"
	"time"
)

// Store holds the last issued code per phone number.
type Store interface {
	Put(ctx context.Context, phone, code string, expiresAt time.Time)
	// Get returns the latest code for phone if present and not expired.
	Get(ctx context.Context, phone string) (code string, ok bool)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Put records code as the latest for phone, replacing any earlier one, and drops expired entries.
func (s *MemoryStore) Put(_ context.Context, phone, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	for k, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, k)
		}
	}
	s.m[phone] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the latest unexpired code for phone.
func (s *MemoryStore) Get(_ context.Context, phone string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[phone]
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, phone)
		return "", false
	}
	return e.code, true
}

// Len returns the number of stored entries, expired ones included until the next Put or Get.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
