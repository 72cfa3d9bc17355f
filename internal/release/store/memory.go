// Package store persists beneficiaries and their append-only decryption
// history. Quota and status rules live in the release service; the store
// only guarantees that conditional writes are atomic.
package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"keepsake/internal/release/models"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/sentinel"
)

type InMemory struct {
	mu            sync.RWMutex
	beneficiaries map[id.BeneficiaryID]*models.Beneficiary
	attempts      map[id.BeneficiaryID][]models.DecryptionAttempt
}

func NewInMemory() *InMemory {
	return &InMemory{
		beneficiaries: make(map[id.BeneficiaryID]*models.Beneficiary),
		attempts:      make(map[id.BeneficiaryID][]models.DecryptionAttempt),
	}
}

func (s *InMemory) Create(_ context.Context, b *models.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.beneficiaries[b.ID]; exists {
		return sentinel.ErrConflict
	}
	s.beneficiaries[b.ID] = b.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.beneficiaries[beneficiaryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *InMemory) FindByTokenHash(_ context.Context, hash string) (*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.beneficiaries {
		if b.TokenHash != "" && b.TokenHash == hash {
			return b.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) ListByVault(_ context.Context, vaultID id.VaultID) ([]*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Beneficiary
	for _, b := range s.beneficiaries {
		if b.VaultID == vaultID {
			out = append(out, b.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListDueUnlocks returns unlock requests whose delay has elapsed at now.
func (s *InMemory) ListDueUnlocks(_ context.Context, now time.Time) ([]*models.Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Beneficiary
	for _, b := range s.beneficiaries {
		if b.UnlockDue(now) {
			out = append(out, b.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// Transition writes b's mutable fields if the stored row still has b.Version
// and one of the from statuses. The decryption count is never written here.
func (s *InMemory) Transition(_ context.Context, b *models.Beneficiary, from ...models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.beneficiaries[b.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Version != b.Version || !slices.Contains(from, cur.Status) {
		return sentinel.ErrConflict
	}
	if b.TokenHash != "" {
		for otherID, other := range s.beneficiaries {
			if otherID != b.ID && other.TokenHash == b.TokenHash {
				return sentinel.ErrConflict
			}
		}
	}
	next := b.Clone()
	next.DecryptionCount = cur.DecryptionCount
	next.Version = cur.Version + 1
	s.beneficiaries[b.ID] = next
	b.Version = next.Version
	return nil
}

// RecordSuccess increments the decryption count if tokenHash is still the
// beneficiary's token and quota remains, marks the beneficiary RELEASED and
// appends a. It returns ErrConflict when the token was replaced and
// ErrExhausted when the count is already at quota; nothing is written in
// either case.
func (s *InMemory) RecordSuccess(_ context.Context, beneficiaryID id.BeneficiaryID, tokenHash string, a *models.DecryptionAttempt, now time.Time) (*models.Beneficiary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.beneficiaries[beneficiaryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if cur.TokenHash != tokenHash {
		return nil, sentinel.ErrConflict
	}
	if !cur.HasQuota() {
		return nil, sentinel.ErrExhausted
	}
	cur.DecryptionCount++
	cur.Status = models.StatusReleased
	cur.ClearUnlock()
	cur.Version++
	cur.UpdatedAt = now
	s.appendLocked(beneficiaryID, a)
	return cur.Clone(), nil
}

// RecordFailure appends a failed attempt.
func (s *InMemory) RecordFailure(_ context.Context, beneficiaryID id.BeneficiaryID, a *models.DecryptionAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.beneficiaries[beneficiaryID]; !ok {
		return sentinel.ErrNotFound
	}
	s.appendLocked(beneficiaryID, a)
	return nil
}

func (s *InMemory) appendLocked(beneficiaryID id.BeneficiaryID, a *models.DecryptionAttempt) {
	log := s.attempts[beneficiaryID]
	a.BeneficiaryID = beneficiaryID
	a.Seq = int64(len(log)) + 1
	s.attempts[beneficiaryID] = append(log, *a)
}

// Attempts returns the history ordered by sequence.
func (s *InMemory) Attempts(_ context.Context, beneficiaryID id.BeneficiaryID) ([]models.DecryptionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.attempts[beneficiaryID]), nil
}

func sortByCreated(bs []*models.Beneficiary) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].ID.String() < bs[j].ID.String()
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}
