// Package store persists vaults. Stores are pure I/O: status rules live in
// the liveness service, which writes through Transition.
package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	vaults map[id.VaultID]*models.Vault
}

func NewInMemory() *InMemory {
	return &InMemory{vaults: make(map[id.VaultID]*models.Vault)}
}

func (s *InMemory) Create(_ context.Context, v *models.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vaults[v.ID]; exists {
		return sentinel.ErrConflict
	}
	s.vaults[v.ID] = v.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, vaultID id.VaultID) (*models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vaults[vaultID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return v.Clone(), nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner id.OwnerID) ([]*models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Vault
	for _, v := range s.vaults {
		if v.OwnerID == owner {
			out = append(out, v.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListSweepable returns vaults in the given statuses whose switch is enabled.
// TRIGGERED vaults are returned whatever the switch says, since an operator
// may force a release while it is off.
func (s *InMemory) ListSweepable(_ context.Context, statuses ...models.Status) ([]*models.Vault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Vault
	for _, v := range s.vaults {
		armed := v.DeadManSwitchEnabled || v.Status == models.StatusTriggered
		if armed && slices.Contains(statuses, v.Status) {
			out = append(out, v.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// Transition writes v's mutable fields if the stored row still has v.Version
// and one of the from statuses. On success v.Version is advanced.
func (s *InMemory) Transition(_ context.Context, v *models.Vault, from ...models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.vaults[v.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Version != v.Version || !slices.Contains(from, cur.Status) {
		return sentinel.ErrConflict
	}
	v.Version++
	s.vaults[v.ID] = v.Clone()
	return nil
}

func sortByCreated(vs []*models.Vault) {
	sort.Slice(vs, func(i, j int) bool {
		return vs[i].CreatedAt.Before(vs[j].CreatedAt)
	})
}
