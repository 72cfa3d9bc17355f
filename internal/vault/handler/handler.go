package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/httputil"
	"keepsake/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the vault operations exposed over HTTP.
type Service interface {
	Initialize(ctx context.Context, owner id.OwnerID, req models.InitializeRequest) (*models.Vault, error)
	Get(ctx context.Context, owner id.OwnerID, vaultID id.VaultID) (*models.Vault, error)
	List(ctx context.Context, owner id.OwnerID) ([]*models.Vault, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterOwner mounts owner routes. The router must already require an
// authenticated owner.
func (h *Handler) RegisterOwner(r chi.Router) {
	r.Post("/v1/vaults", h.handleInitialize)
	r.Get("/v1/vaults", h.handleList)
	r.Get("/v1/vaults/{id}", h.handleGet)
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := requestcontext.OwnerID(ctx)

	var req models.InitializeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid initialize vault request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	v, err := h.service.Initialize(ctx, owner, req)
	if err != nil {
		h.writeServiceError(ctx, w, "initialize vault", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.ToResponse(v))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, err := id.ParseVaultID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.service.Get(ctx, requestcontext.OwnerID(ctx), vaultID)
	if err != nil {
		h.writeServiceError(ctx, w, "get vault", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToResponse(v))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vs, err := h.service.List(ctx, requestcontext.OwnerID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "list vaults", err)
		return
	}
	out := make([]models.VaultResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, models.ToResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"vaults": out})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
