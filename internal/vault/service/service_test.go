package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"keepsake/internal/plan"
	"keepsake/internal/vault/models"
	"keepsake/internal/vault/store"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	auditpublisher "keepsake/pkg/platform/audit/publisher"
	auditmemory "keepsake/pkg/platform/audit/store/memory"
	"keepsake/pkg/testutil"
)

// =============================================================================
// Vault Service Test Suite
// =============================================================================
// Justification for unit tests: plan defaults, schedule overrides and owner
// scoping are decided here and nowhere else.

type VaultServiceSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *testutil.StubClock
	store    *store.InMemory
	auditLog *auditmemory.InMemoryStore
	service  *Service
	owner    id.OwnerID
}

func TestVaultServiceSuite(t *testing.T) {
	suite.Run(t, new(VaultServiceSuite))
}

func (s *VaultServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = testutil.FixedClock()
	s.store = store.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.owner = id.OwnerID(id.NewVaultID())

	var err error
	s.service, err = New(s.store,
		WithClock(s.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(auditpublisher.NewPublisher(s.auditLog)),
	)
	s.Require().NoError(err)
}

func sealed(s *VaultServiceSuite) vaultcrypto.Envelope {
	env, err := vaultcrypto.Seal([]byte("master"), []byte("letters"))
	s.Require().NoError(err)
	return env
}

func intPtr(n int) *int { return &n }

func (s *VaultServiceSuite) TestInitialize() {
	s.Run("defaults schedule from plan", func() {
		v, err := s.service.Initialize(s.ctx, s.owner, models.InitializeRequest{Payload: sealed(s)})
		s.Require().NoError(err)
		s.Equal(plan.TierFree, v.Plan)
		s.Equal(90, v.HeartbeatFrequencyDays)
		s.Equal(7, v.GracePeriodDays)
		s.Equal(s.clock.Now(), v.LastSeenAt)
		s.Equal(models.StatusActive, v.Status)

		events, err := s.auditLog.ListByVault(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventVaultInitialized), events[0].Action)
		s.Equal(s.owner.String(), events[0].ActorID)
	})

	s.Run("explicit schedule overrides plan", func() {
		v, err := s.service.Initialize(s.ctx, s.owner, models.InitializeRequest{
			Plan:                   " Premium ",
			Payload:                sealed(s),
			HeartbeatFrequencyDays: intPtr(14),
			GracePeriodDays:        intPtr(0),
		})
		s.Require().NoError(err)
		s.Equal(plan.TierPremium, v.Plan)
		s.Equal(14, v.HeartbeatFrequencyDays)
		s.Equal(0, v.GracePeriodDays)
	})

	s.Run("unknown plan", func() {
		_, err := s.service.Initialize(s.ctx, s.owner, models.InitializeRequest{Plan: "gold", Payload: sealed(s)})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("missing payload", func() {
		_, err := s.service.Initialize(s.ctx, s.owner, models.InitializeRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *VaultServiceSuite) TestGet_ScopedToOwner() {
	v, err := s.service.Initialize(s.ctx, s.owner, models.InitializeRequest{Payload: sealed(s)})
	s.Require().NoError(err)

	got, err := s.service.Get(s.ctx, s.owner, v.ID)
	s.Require().NoError(err)
	s.Equal(v.ID, got.ID)

	_, err = s.service.Get(s.ctx, id.OwnerID(id.NewVaultID()), v.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, s.owner, id.NewVaultID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	list, err := s.service.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Len(list, 1)
}
