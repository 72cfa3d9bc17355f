// Package store persists the liveness event log. Events are append-only.
package store

import (
	"context"
	"sync"

	"keepsake/internal/liveness/models"
	id "keepsake/pkg/domain"
)

type InMemory struct {
	mu     sync.RWMutex
	events map[id.VaultID][]models.Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.VaultID][]models.Event)}
}

func (s *InMemory) Append(_ context.Context, e models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.VaultID] = append(s.events[e.VaultID], e)
	return nil
}

// ListByVault returns events oldest first.
func (s *InMemory) ListByVault(_ context.Context, vaultID id.VaultID) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Event(nil), s.events[vaultID]...), nil
}
