package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"keepsake/internal/liveness/models"
	"keepsake/internal/liveness/service"
	vaultmodels "keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/httputil"
	"keepsake/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the liveness operations exposed over HTTP.
type Service interface {
	Heartbeat(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) (*vaultmodels.Vault, error)
	UpdateSchedule(ctx context.Context, vaultID id.VaultID, owner id.OwnerID, frequencyDays, graceDays int) (*vaultmodels.Vault, error)
	SetSwitch(ctx context.Context, vaultID id.VaultID, owner id.OwnerID, enabled bool) (*vaultmodels.Vault, error)
	Retire(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) (*vaultmodels.Vault, error)
	Events(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) ([]models.Event, error)
	TriggerNow(ctx context.Context, vaultID id.VaultID, operator id.OwnerID) (*vaultmodels.Vault, error)
	Sweep(ctx context.Context) (service.SweepReport, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterOwner mounts routes for an authenticated vault owner.
func (h *Handler) RegisterOwner(r chi.Router) {
	r.Post("/v1/vaults/{id}/heartbeat", h.handleHeartbeat)
	r.Put("/v1/vaults/{id}/schedule", h.handleSchedule)
	r.Put("/v1/vaults/{id}/switch", h.handleSwitch)
	r.Delete("/v1/vaults/{id}", h.handleRetire)
	r.Get("/v1/vaults/{id}/events", h.handleEvents)
}

// RegisterAdmin mounts operator routes. The router must already require the
// admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/v1/admin/vaults/{id}/trigger", h.handleTrigger)
	r.Post("/v1/admin/sweep", h.handleSweep)
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Heartbeat(ctx, vaultID, requestcontext.OwnerID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "record heartbeat", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vaultmodels.ToResponse(v))
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	var req models.ScheduleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.UpdateSchedule(ctx, vaultID, requestcontext.OwnerID(ctx), *req.HeartbeatFrequencyDays, *req.GracePeriodDays)
	if err != nil {
		h.writeServiceError(ctx, w, "update schedule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vaultmodels.ToResponse(v))
}

func (h *Handler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	var req models.SwitchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.service.SetSwitch(ctx, vaultID, requestcontext.OwnerID(ctx), *req.Enabled)
	if err != nil {
		h.writeServiceError(ctx, w, "set switch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vaultmodels.ToResponse(v))
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Retire(ctx, vaultID, requestcontext.OwnerID(ctx)); err != nil {
		h.writeServiceError(ctx, w, "retire vault", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	events, err := h.service.Events(ctx, vaultID, requestcontext.OwnerID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "list events", err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, ok := h.vaultID(w, r)
	if !ok {
		return
	}
	operator := requestcontext.OwnerID(ctx)
	v, err := h.service.TriggerNow(ctx, vaultID, operator)
	if err != nil {
		h.writeServiceError(ctx, w, "trigger vault", err)
		return
	}
	h.logger.InfoContext(ctx, "vault triggered by operator",
		"request_id", requestcontext.RequestID(ctx),
		"vault_id", vaultID,
		"operator_id", operator,
	)
	httputil.WriteJSON(w, http.StatusOK, vaultmodels.ToResponse(v))
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.Sweep(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "run sweep", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) vaultID(w http.ResponseWriter, r *http.Request) (id.VaultID, bool) {
	vaultID, err := id.ParseVaultID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.VaultID{}, false
	}
	return vaultID, true
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
