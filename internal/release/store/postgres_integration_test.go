//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"keepsake/internal/plan"
	"keepsake/internal/platform/postgres"
	"keepsake/internal/release/models"
	"keepsake/internal/release/store"
	"keepsake/internal/shipment"
	vaultmodels "keepsake/internal/vault/models"
	vaultstore "keepsake/internal/vault/store"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/sentinel"
	"keepsake/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	vaults   *vaultstore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
	s.vaults = vaultstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "decryption_attempts", "beneficiaries", "vaults"))
}

func (s *PostgresStoreSuite) now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) newBeneficiary(limit, bonus int) *models.Beneficiary {
	ctx := context.Background()
	env, err := vaultcrypto.Seal([]byte("pw"), []byte("payload"))
	s.Require().NoError(err)
	v, err := vaultmodels.NewVault(id.OwnerID(id.NewVaultID()), plan.TierFree, env, vaultcrypto.Envelope{}, "", 90, 7, s.now())
	s.Require().NoError(err)
	s.Require().NoError(s.vaults.Create(ctx, v))

	addr := shipment.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	b, err := models.NewBeneficiary(v.ID, "Alice", "alice@example.com", addr, limit, bonus, s.now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, b))
	return b
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	b := s.newBeneficiary(2, 1)

	found, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(b.Address, found.Address)
	s.Equal(3, found.Quota())
	s.Empty(found.TokenHash)
	s.Nil(found.TokenExpiresAt)

	list, err := s.store.ListByVault(ctx, b.VaultID)
	s.Require().NoError(err)
	s.Len(list, 1)

	s.ErrorIs(s.store.Create(ctx, b), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestTokenTransition() {
	ctx := context.Background()
	b := s.newBeneficiary(1, 0)
	other := s.newBeneficiary(1, 0)

	expires := s.now().Add(24 * time.Hour)
	b.Status = models.StatusNotified
	b.TokenHash = "hash-1"
	b.TokenExpiresAt = &expires
	s.Require().NoError(s.store.Transition(ctx, b, models.StatusPending))

	found, err := s.store.FindByTokenHash(ctx, "hash-1")
	s.Require().NoError(err)
	s.Equal(b.ID, found.ID)
	s.Require().NotNil(found.TokenExpiresAt)
	s.True(expires.Equal(*found.TokenExpiresAt))

	other.TokenHash = "hash-1"
	s.ErrorIs(s.store.Transition(ctx, other, models.StatusPending), sentinel.ErrConflict)

	stale, err := s.store.FindByID(ctx, other.ID)
	s.Require().NoError(err)
	stale.Version = 99
	s.ErrorIs(s.store.Transition(ctx, stale, models.StatusPending), sentinel.ErrConflict)
}

// TestConcurrentDecryptions verifies the conditional increment under real
// row locking: one remaining decryption, many simultaneous successes.
func (s *PostgresStoreSuite) TestConcurrentDecryptions() {
	ctx := context.Background()
	b := s.newBeneficiary(1, 0)

	const goroutines = 20
	var wins, exhausted atomic.Int32
	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			_, err := s.store.RecordSuccess(ctx, b.ID, b.TokenHash, &models.DecryptionAttempt{At: s.now(), Success: true}, s.now())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrExhausted):
				exhausted.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), exhausted.Load())

	found, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(1, found.DecryptionCount)
	s.Equal(models.StatusReleased, found.Status)
}

func (s *PostgresStoreSuite) TestHistorySequence() {
	ctx := context.Background()
	b := s.newBeneficiary(1, 0)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			s.NoError(s.store.RecordFailure(ctx, b.ID, &models.DecryptionAttempt{
				At: s.now(), IP: "203.0.113.7", Reason: models.ReasonInvalidCredentials,
			}))
		})
	}
	wg.Wait()

	attempts, err := s.store.Attempts(ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Len(attempts, 10)
	for i, a := range attempts {
		s.Equal(int64(i+1), a.Seq)
		s.False(a.Success)
	}

	s.ErrorIs(s.store.RecordFailure(ctx, id.NewBeneficiaryID(), &models.DecryptionAttempt{}), sentinel.ErrNotFound)
	_, err = s.store.RecordSuccess(ctx, id.NewBeneficiaryID(), "", &models.DecryptionAttempt{}, s.now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRecordSuccessRejectsReplacedToken() {
	ctx := context.Background()
	b := s.newBeneficiary(1, 0)
	cur, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	cur.TokenHash = "second"
	s.Require().NoError(s.store.Transition(ctx, cur, models.StatusPending))

	_, err = s.store.RecordSuccess(ctx, b.ID, "first", &models.DecryptionAttempt{At: s.now(), Success: true}, s.now())
	s.ErrorIs(err, sentinel.ErrConflict)

	found, err := s.store.FindByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Zero(found.DecryptionCount)
	attempts, err := s.store.Attempts(ctx, b.ID)
	s.Require().NoError(err)
	s.Empty(attempts)
}

func (s *PostgresStoreSuite) TestListDueUnlocks() {
	ctx := context.Background()
	b := s.newBeneficiary(1, 0)
	requested := s.now()
	until := requested.Add(24 * time.Hour)
	b.Status = models.StatusUnlockRequested
	b.UnlockRequestedAt = &requested
	b.UnlockDelayUntil = &until
	s.Require().NoError(s.store.Transition(ctx, b, models.StatusPending))

	due, err := s.store.ListDueUnlocks(ctx, requested)
	s.Require().NoError(err)
	s.Empty(due)

	due, err = s.store.ListDueUnlocks(ctx, until)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(b.ID, due[0].ID)
}
