package credstore

import (
	"context"
	"sync"
)

// Memory keeps credentials in process memory only.
type Memory struct {
	mu    sync.RWMutex
	creds Credentials
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, nil
}

func (m *Memory) Set(_ context.Context, creds Credentials) error {
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.creds = Credentials{}
	m.mu.Unlock()
	return nil
}
