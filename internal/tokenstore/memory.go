package tokenstore

import (
	"context"
	"sync"

	"github.com/florianilch/claudine-auth/internal/session"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// Compile-time check to ensure MemoryStore implements CredentialStore
var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored credentials.
func (m *MemoryStore) Load(ctx context.Context) (*session.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return decode(m.data)
}

// Save replaces the stored credentials.
func (m *MemoryStore) Save(ctx context.Context, creds *session.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(creds)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Clear drops the stored credentials.
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
