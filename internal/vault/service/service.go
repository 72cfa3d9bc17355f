package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keepsake/internal/plan"
	"keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, v *models.Vault) error
	FindByID(ctx context.Context, vaultID id.VaultID) (*models.Vault, error)
	ListByOwner(ctx context.Context, owner id.OwnerID) ([]*models.Vault, error)
}

// Service creates vaults and serves owner reads. Status changes after
// creation belong to the liveness service.
type Service struct {
	store          Store
	plans          *plan.Catalog
	logger         *slog.Logger
	auditPublisher audit.Publisher
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPlans(c *plan.Catalog) Option {
	return func(s *Service) { s.plans = c }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("vault store is required")
	}
	s := &Service{
		store:  store,
		plans:  plan.DefaultCatalog(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize stores a client-sealed payload as a new ACTIVE vault.
func (s *Service) Initialize(ctx context.Context, owner id.OwnerID, req models.InitializeRequest) (*models.Vault, error) {
	req.Normalize()
	if req.Plan == "" {
		req.Plan = plan.TierFree
	}
	limits, err := s.plans.Lookup(req.Plan)
	if err != nil {
		return nil, err
	}

	frequency := limits.HeartbeatFrequencyDays
	if req.HeartbeatFrequencyDays != nil {
		frequency = *req.HeartbeatFrequencyDays
	}
	grace := limits.GracePeriodDays
	if req.GracePeriodDays != nil {
		grace = *req.GracePeriodDays
	}

	v, err := models.NewVault(owner, req.Plan, req.Payload, req.RecoveryBackup, req.Hint, frequency, grace, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create vault")
	}

	s.logAudit(ctx, audit.EventVaultInitialized,
		"vault_id", v.ID,
		"owner_id", owner,
		"plan", string(v.Plan),
	)
	return v, nil
}

// Get returns the owner's vault. Vaults of other owners look like missing ones.
func (s *Service) Get(ctx context.Context, owner id.OwnerID, vaultID id.VaultID) (*models.Vault, error) {
	v, err := s.store.FindByID(ctx, vaultID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "vault not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load vault")
	}
	if v.OwnerID != owner {
		return nil, dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, owner id.OwnerID) ([]*models.Vault, error) {
	vs, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vaults")
	}
	return vs, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attrs ...any) {
	audit.LogAudit(ctx, s.logger, s.auditPublisher, event, attrs...)
}
