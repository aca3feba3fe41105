package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"palmreader/pkg/domain"
)

// MemoryStore keeps the ledger in-process. Used by tests and dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]domain.User
	uploads  []domain.Upload
	readings []domain.Reading
	nextID   int64
}

// NewMemoryStore initializes an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]domain.User)}
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }

// EnsureUser stores the user on first sight.
func (m *MemoryStore) EnsureUser(_ context.Context, u domain.User) (int64, error) {
	if u.ID == 0 {
		return 0, ErrInvalidUser
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		return existing.ID, nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return u.ID, nil
}

// RecordUpload appends an upload and assigns its id.
func (m *MemoryStore) RecordUpload(_ context.Context, up domain.Upload) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[up.UserID]; !ok {
		return 0, fmt.Errorf("record upload: unknown user %d", up.UserID)
	}
	m.nextID++
	up.ID = m.nextID
	if up.CreatedAt.IsZero() {
		up.CreatedAt = time.Now().UTC()
	}
	m.uploads = append(m.uploads, up)
	return up.ID, nil
}

// RecordReading appends a reading; one per upload.
func (m *MemoryStore) RecordReading(_ context.Context, r domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, up := range m.uploads {
		if up.ID == r.UploadID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("record reading: unknown upload %d", r.UploadID)
	}
	for _, existing := range m.readings {
		if existing.UploadID == r.UploadID {
			return fmt.Errorf("record reading: upload %d already has a reading", r.UploadID)
		}
	}
	m.nextID++
	r.ID = m.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.readings = append(m.readings, r)
	return nil
}

// Users returns a snapshot of stored users.
func (m *MemoryStore) Users() []domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	return res
}

// Uploads returns uploads in insertion order.
func (m *MemoryStore) Uploads() []domain.Upload {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Upload(nil), m.uploads...)
}

// Readings returns readings in insertion order.
func (m *MemoryStore) Readings() []domain.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Reading(nil), m.readings...)
}
