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
	"keepsake/internal/vault/models"
	"keepsake/internal/vault/store"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/sentinel"
	"keepsake/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "vaults"))
}

func newTestVault(s *PostgresStoreSuite, withBackup bool) *models.Vault {
	env := func() vaultcrypto.Envelope {
		e, err := vaultcrypto.Seal([]byte("pw"), []byte("payload"))
		s.Require().NoError(err)
		return e
	}
	backup := vaultcrypto.Envelope{}
	if withBackup {
		backup = env()
	}
	v, err := models.NewVault(id.OwnerID(id.NewVaultID()), plan.TierFree, env(), backup, "hint", 90, 7,
		time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return v
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	v := newTestVault(s, true)
	s.Require().NoError(s.store.Create(ctx, v))

	found, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(v.OwnerID, found.OwnerID)
	s.Equal(v.Payload, found.Payload)
	s.Equal(v.RecoveryBackup, found.RecoveryBackup)
	s.True(v.LastSeenAt.Equal(found.LastSeenAt))
	s.Nil(found.DeadManSwitchActivatedAt)

	s.ErrorIs(s.store.Create(ctx, v), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestNoRecoveryBackupScansEmpty() {
	ctx := context.Background()
	v := newTestVault(s, false)
	s.Require().NoError(s.store.Create(ctx, v))

	found, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.False(found.HasRecoveryBackup())
}

func (s *PostgresStoreSuite) TestTransition() {
	ctx := context.Background()
	v := newTestVault(s, false)
	s.Require().NoError(s.store.Create(ctx, v))

	cur, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	now := time.Now().UTC().Truncate(time.Microsecond)
	cur.Status = models.StatusTriggered
	cur.DeadManSwitchActivatedAt = &now
	s.Require().NoError(s.store.Transition(ctx, cur, models.StatusActive, models.StatusPendingVerification))

	found, err := s.store.FindByID(ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusTriggered, found.Status)
	s.Equal(int64(2), found.Version)
	s.Require().NotNil(found.DeadManSwitchActivatedAt)

	s.ErrorIs(s.store.Transition(ctx, v, models.StatusActive), sentinel.ErrConflict)

	ghost := newTestVault(s, false)
	s.ErrorIs(s.store.Transition(ctx, ghost, models.StatusActive), sentinel.ErrNotFound)
}

// TestConcurrentTransitions verifies that concurrent sweeps holding the same
// snapshot produce exactly one transition.
func (s *PostgresStoreSuite) TestConcurrentTransitions() {
	ctx := context.Background()
	v := newTestVault(s, false)
	s.Require().NoError(s.store.Create(ctx, v))

	const goroutines = 20
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := v.Clone()
			c.Status = models.StatusPendingVerification
			err := s.store.Transition(ctx, c, models.StatusActive)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestListSweepable() {
	ctx := context.Background()
	active := newTestVault(s, false)
	off := newTestVault(s, false)
	off.DeadManSwitchEnabled = false
	forced := newTestVault(s, false)
	forced.DeadManSwitchEnabled = false
	forced.Status = models.StatusTriggered
	for _, v := range []*models.Vault{active, off, forced} {
		s.Require().NoError(s.store.Create(ctx, v))
	}

	vs, err := s.store.ListSweepable(ctx, models.StatusActive)
	s.Require().NoError(err)
	s.Require().Len(vs, 1)
	s.Equal(active.ID, vs[0].ID)

	vs, err = s.store.ListSweepable(ctx, models.StatusActive, models.StatusTriggered)
	s.Require().NoError(err)
	var got []id.VaultID
	for _, v := range vs {
		got = append(got, v.ID)
	}
	s.ElementsMatch([]id.VaultID{active.ID, forced.ID}, got)
}
